package classifier

import (
	"image"

	"golang.org/x/image/draw"
)

// InputSize - сторона квадрата, к которому приводится изображение перед моделью.
const InputSize = 224

// Статистики каналов ImageNet, на которых обучалась модель.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess масштабирует изображение до InputSize×InputSize (билинейно, без сохранения пропорций),
// переводит пиксели в [0, 1] и нормализует каждый канал. Результат - тензор CHW длиной 3*InputSize*InputSize.
func Preprocess(src image.Image) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := InputSize * InputSize
	out := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			for ch := 0; ch < 3; ch++ {
				v := float32(px[ch]) / 255
				out[ch*plane+y*InputSize+x] = (v - channelMean[ch]) / channelStd[ch]
			}
		}
	}
	return out
}
