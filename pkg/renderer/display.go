package renderer

import (
	"image"
	"image/color"
	"sync"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// ImageDisplay is a Display that keeps the image in memory
type ImageDisplay struct {
	mu       sync.Mutex
	width    int
	height   int
	pixels   []core.Vec3
	alpha    []float64
	updates  int
	fills    int
	finished bool
}

// NewImageDisplay creates an empty in-memory display
func NewImageDisplay() *ImageDisplay {
	return &ImageDisplay{}
}

// ImageBegin allocates a black, transparent frame
func (d *ImageDisplay) ImageBegin(width, height, bucketSize int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.width, d.height = width, height
	d.pixels = make([]core.Vec3, width*height)
	d.alpha = make([]float64, width*height)
	d.updates, d.fills = 0, 0
	d.finished = false
}

// ImagePrepare does nothing; the frame is written in place
func (d *ImageDisplay) ImagePrepare(x, y, width, height, id int) {}

// ImageUpdate copies a block of pixels into the frame
func (d *ImageDisplay) ImageUpdate(x, y, width, height int, colors []core.Vec3, alpha []float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for j := 0; j < height; j++ {
		py := y + j
		if py < 0 || py >= d.height {
			continue
		}
		for i := 0; i < width; i++ {
			px := x + i
			if px < 0 || px >= d.width {
				continue
			}
			d.pixels[py*d.width+px] = colors[j*width+i]
			d.alpha[py*d.width+px] = alpha[j*width+i]
		}
	}
	d.updates++
}

// ImageFill sets a block of pixels to one color
func (d *ImageDisplay) ImageFill(x, y, width, height int, c core.Vec3, alpha float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for py := max(y, 0); py < min(y+height, d.height); py++ {
		for px := max(x, 0); px < min(x+width, d.width); px++ {
			d.pixels[py*d.width+px] = c
			d.alpha[py*d.width+px] = alpha
		}
	}
	d.fills++
}

// ImageEnd marks the frame as complete
func (d *ImageDisplay) ImageEnd() {
	d.mu.Lock()
	d.finished = true
	d.mu.Unlock()
}

// Size returns the frame dimensions
func (d *ImageDisplay) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

// Pixel returns the linear color and alpha at (x, y)
func (d *ImageDisplay) Pixel(x, y int) (core.Vec3, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := y*d.width + x
	return d.pixels[i], d.alpha[i]
}

// Updates is the number of ImageUpdate and ImageFill calls received
func (d *ImageDisplay) Updates() (updates, fills int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates, d.fills
}

// Finished reports whether ImageEnd has been called
func (d *ImageDisplay) Finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finished
}

// Image converts the frame to 8-bit RGBA
func (d *ImageDisplay) Image() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			i := y*d.width + x
			img.SetRGBA(x, y, vec3ToColor(d.pixels[i]))
		}
	}
	return img
}

// vec3ToColor converts a Vec3 color to RGBA with proper clamping and gamma correction
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	// Apply gamma correction (gamma = 2.0)
	colorVec = colorVec.GammaCorrect(2.0)

	// Clamp to valid color range
	colorVec = colorVec.Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}

// CalculateAverageLuminance returns the mean luminance of img with channels
// scaled to [0,1]
func CalculateAverageLuminance(img image.Image) float64 {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy()
	if n == 0 {
		return 0
	}
	total := 0.0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c := core.NewVec3(float64(r)/0xffff, float64(g)/0xffff, float64(b)/0xffff)
			total += c.Luminance()
		}
	}
	return total / float64(n)
}
