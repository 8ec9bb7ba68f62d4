package filters

import (
	"bytes"
	"errors"
	"image"
	"testing"

	"github.com/wudi/pdfpress/ir/raw"
)

func TestFlateRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("pdfpress "), 100)
	enc := EncodeFlate(payload)
	if len(enc) >= len(payload) {
		t.Errorf("flate did not shrink repetitive input: %d >= %d", len(enc), len(payload))
	}
	dec, err := flateDecoder{}.Decode(enc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, payload) {
		t.Error("round trip mismatch")
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := asciiHexDecoder{}.Decode([]byte("48 65 6C 6C 6F>"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Hello" {
		t.Errorf("got %q", out)
	}
	// Odd digit count implies a trailing zero nibble.
	out, err = asciiHexDecoder{}.Decode([]byte("7>"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != 0x70 {
		t.Errorf("odd-length decode: %v", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run "ab", then 'c' repeated 4 times, then EOD.
	in := []byte{1, 'a', 'b', 253, 'c', 128}
	out, err := runLengthDecoder{}.Decode(in, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abcccc" {
		t.Errorf("got %q", out)
	}
}

func TestPNGUpPredictor(t *testing.T) {
	// Two rows of 4 one-byte columns, filter type 2 (Up).
	params := raw.Dict()
	params.Set(raw.NameLiteral("Predictor"), raw.NumberInt(12))
	params.Set(raw.NameLiteral("Columns"), raw.NumberInt(4))
	in := []byte{
		2, 10, 20, 30, 40,
		2, 1, 1, 1, 1,
	}
	out, err := applyPredictor(in, params)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 20, 30, 40, 11, 21, 31, 41}
	if !bytes.Equal(out, want) {
		t.Errorf("got %v, want %v", out, want)
	}
}

func TestFilterChainShapes(t *testing.T) {
	dict := raw.Dict()
	dict.Set(raw.NameLiteral("Filter"), raw.NameLiteral("FlateDecode"))
	names, params := FilterChain(dict)
	if len(names) != 1 || names[0] != "FlateDecode" || params[0] != nil {
		t.Errorf("single name: %v %v", names, params)
	}

	dict = raw.Dict()
	dict.Set(raw.NameLiteral("Filter"),
		raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	names, _ = FilterChain(dict)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Errorf("array form: %v", names)
	}
}

func TestDecodeUnknownFilter(t *testing.T) {
	_, err := Decode(DefaultRegistry(), nil, []string{"JBIG2Decode"}, nil)
	if !errors.Is(err, raw.ErrCodecFailure) {
		t.Errorf("err = %v, want ErrCodecFailure", err)
	}
}

func TestCodecJPEGRoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range src.Pix {
		src.Pix[i] = byte(i * 7)
	}
	codec := StdCodec{}
	data, err := codec.EncodeJPEG(src, 80)
	if err != nil {
		t.Fatal(err)
	}
	info := ImageInfo{Width: 32, Height: 32, Filter: "DCTDecode"}
	stream := raw.NewStream(raw.Dict(), data)
	img, err := codec.DecodeImage(stream, info)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Errorf("decoded bounds %v", img.Bounds())
	}
}

func TestCodecResample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	dst := StdCodec{}.Resample(src, 50, 25)
	if dst.Bounds().Dx() != 50 || dst.Bounds().Dy() != 25 {
		t.Errorf("resampled bounds %v", dst.Bounds())
	}
}

func TestDecodeGrayImage(t *testing.T) {
	pix := make([]byte, 16)
	for i := range pix {
		pix[i] = byte(i * 16)
	}
	dict := raw.Dict()
	stream := raw.NewStream(dict, pix)
	info := ImageInfo{Width: 4, Height: 4, BitsPerComponent: 8, ColorSpace: "DeviceGray"}
	img, err := StdCodec{}.DecodeImage(stream, info)
	if err != nil {
		t.Fatal(err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		t.Fatalf("got %T", img)
	}
	if gray.Pix[5] != 80 {
		t.Errorf("pixel 5 = %d", gray.Pix[5])
	}
}
