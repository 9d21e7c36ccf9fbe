package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kean-go/imagepipeline/internal/model"
)

func encodedTestPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 50), G: uint8(y * 50), B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStdlibDecoder_Decode_ReturnsDecodedImageAndFormat(t *testing.T) {
	data := encodedTestPNG(t)
	d := StdlibDecoder{}

	container, err := d.Decode(model.DecodingContext{}, data)

	require.NoError(t, err)
	assert.Equal(t, "png", container.Type)
	assert.Equal(t, data, container.Data)
	require.NotNil(t, container.Image)
	img, ok := container.Image.(image.Image)
	require.True(t, ok)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestStdlibDecoder_Decode_RejectsGarbageBytes(t *testing.T) {
	d := StdlibDecoder{}

	_, err := d.Decode(model.DecodingContext{}, []byte("not an image"))

	assert.Error(t, err)
}

func TestFactory_AlwaysReturnsSameDecoder(t *testing.T) {
	factory := Factory()

	a := factory(model.DecodingContext{})
	b := factory(model.DecodingContext{Request: model.NewRequestFromURL("http://x/b.jpg")})

	assert.Equal(t, a, b)
}
