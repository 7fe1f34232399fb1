package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"sort"

	xdraw "golang.org/x/image/draw"
)

// Rotate turns img clockwise by degrees (0, 90, 180, 270) and re-encodes it
// as PNG. Right-angle rotation is lossless pixel shuffling.
func Rotate(img []byte, degrees int) ([]byte, error) {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 {
		return img, nil
	}
	if degrees%90 != 0 {
		return nil, fmt.Errorf("ocr: rotation must be a right angle, got %d", degrees)
	}
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("ocr: decode for rotate: %w", err)
	}
	rotated := rotateImage(src, degrees)
	var buf bytes.Buffer
	if err := png.Encode(&buf, rotated); err != nil {
		return nil, fmt.Errorf("ocr: encode rotated: %w", err)
	}
	return buf.Bytes(), nil
}

func rotateImage(src image.Image, degrees int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	var dst *image.RGBA
	switch degrees {
	case 90:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 180:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(w-1-x, h-1-y, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	case 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Set(y, w-1-x, src.At(b.Min.X+x, b.Min.Y+y))
			}
		}
	default:
		dst = image.NewRGBA(b)
		xdraw.Draw(dst, b, src, b.Min, xdraw.Src)
	}
	return dst
}

// Downscale caps the longer edge at maxEdge so orientation scoring stays
// cheap. Images already small enough pass through untouched.
func Downscale(img []byte, maxEdge int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("ocr: decode for downscale: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return img, nil
	}
	var nw, nh int
	if w >= h {
		nw = maxEdge
		nh = h * maxEdge / w
	} else {
		nh = maxEdge
		nw = w * maxEdge / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("ocr: encode downscaled: %w", err)
	}
	return buf.Bytes(), nil
}

// Binarize applies the named thresholding strategy and returns a PNG.
func Binarize(img []byte, strategy string) ([]byte, error) {
	if strategy == BinarizeNone || strategy == "" {
		return img, nil
	}
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("ocr: decode for binarize: %w", err)
	}
	gray := toGray(src)
	var out *image.Gray
	switch strategy {
	case BinarizeOtsu:
		out = threshold(gray, otsuThreshold(gray))
	case BinarizeAdaptive:
		out = adaptiveThreshold(gray, 15, 5)
	default:
		return nil, fmt.Errorf("ocr: unknown binarize strategy %q", strategy)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("ocr: encode binarized: %w", err)
	}
	return buf.Bytes(), nil
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(gray, gray.Bounds(), src, b.Min, xdraw.Src)
	return gray
}

// otsuThreshold picks the global threshold maximizing between-class variance.
func otsuThreshold(gray *image.Gray) uint8 {
	var hist [256]int
	total := 0
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return 128
	}
	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}
	var sumB, wB float64
	var best float64
	bestT := 128
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			bestT = t
		}
	}
	return uint8(bestT)
}

func threshold(gray *image.Gray, t uint8) *image.Gray {
	b := gray.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if gray.GrayAt(x, y).Y > t {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// adaptiveThreshold binarizes against a local mean over a window of the given
// radius, offset by c. Handles shadows and uneven card lighting.
func adaptiveThreshold(gray *image.Gray, radius, c int) *image.Gray {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)

	// Summed-area table for O(1) window means.
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			integral[(y+1)*(w+1)+(x+1)] = integral[y*(w+1)+(x+1)] + rowSum
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0 := maxInt(0, x-radius)
			y0 := maxInt(0, y-radius)
			x1 := minInt(w-1, x+radius)
			y1 := minInt(h-1, y+radius)
			area := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+(x1+1)] -
				integral[y0*(w+1)+(x1+1)] -
				integral[(y1+1)*(w+1)+x0] +
				integral[y0*(w+1)+x0]
			mean := sum / area
			px := int64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			if px > mean-int64(c) {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 255})
			} else {
				out.SetGray(b.Min.X+x, b.Min.Y+y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// SortLinesDocumentOrder orders lines top-to-bottom, then left-to-right for
// lines on the same visual row.
func SortLinesDocumentOrder(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		// Same row when vertical overlap exceeds half the shorter height.
		ay, by := a.BBox.Y+a.BBox.H/2, b.BBox.Y+b.BBox.H/2
		if ay >= b.BBox.Y && ay <= b.BBox.Y+b.BBox.H && by >= a.BBox.Y && by <= a.BBox.Y+a.BBox.H {
			return a.BBox.X < b.BBox.X
		}
		return a.BBox.Y < b.BBox.Y
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
