// Package filters implements the decode-filter pipeline and the image codec
// adapter. Engine logic above this package never touches entropy-coded
// bytes: it asks for decoded payloads and hands back rasters to re-encode.
package filters

import (
	"bytes"
	"compress/lzw"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/wudi/pdfpress/ir/raw"
)

// Decoder reverses one stream filter.
type Decoder interface {
	Name() string
	Decode(input []byte, params raw.Dictionary) ([]byte, error)
}

// Registry maps filter names to decoders.
type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}

func (r *Registry) Get(name string) (Decoder, bool) {
	d, ok := r.decoders[name]
	return d, ok
}

// DefaultRegistry returns a registry with every built-in decoder.
func DefaultRegistry() *Registry {
	r := &Registry{}
	r.Register(flateDecoder{})
	r.Register(lzwDecoder{})
	r.Register(asciiHexDecoder{})
	r.Register(ascii85Decoder{})
	r.Register(runLengthDecoder{})
	return r
}

// FilterChain extracts the filter names and per-filter parameter
// dictionaries from a stream dictionary. /Filter may be a single name or an
// array; /DecodeParms mirrors that shape.
func FilterChain(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary

	fObj, _ := dict.Get(raw.NameLiteral("Filter"))
	switch f := fObj.(type) {
	case raw.Name:
		names = append(names, f.Value())
	case raw.Array:
		for i := 0; i < f.Len(); i++ {
			if n, ok := mustGet(f, i).(raw.Name); ok {
				names = append(names, n.Value())
			}
		}
	}

	pObj, _ := dict.Get(raw.NameLiteral("DecodeParms"))
	switch p := pObj.(type) {
	case raw.Dictionary:
		params = append(params, p)
	case raw.Array:
		for i := 0; i < p.Len(); i++ {
			d, _ := mustGet(p, i).(raw.Dictionary)
			params = append(params, d)
		}
	}
	for len(params) < len(names) {
		params = append(params, nil)
	}
	return names, params
}

func mustGet(a raw.Array, i int) raw.Object {
	v, _ := a.Get(i)
	return v
}

// Decode applies the named filter chain, in order, to input.
func Decode(reg *Registry, input []byte, names []string, params []raw.Dictionary) ([]byte, error) {
	data := input
	for i, name := range names {
		dec, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("filter %s: %w", name, raw.ErrCodecFailure)
		}
		var p raw.Dictionary
		if i < len(params) {
			p = params[i]
		}
		out, err := dec.Decode(data, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream's payload using its own dictionary.
// DCTDecode and JPXDecode terminate the chain undecoded: their payload is a
// self-contained image the codec adapter handles separately.
func DecodeStream(stream raw.Stream) ([]byte, error) {
	names, params := FilterChain(stream.Dictionary())
	reg := DefaultRegistry()
	data := stream.RawData()
	for i, name := range names {
		if name == "DCTDecode" || name == "JPXDecode" {
			return data, nil
		}
		dec, ok := reg.Get(name)
		if !ok {
			return nil, fmt.Errorf("filter %s: %w", name, raw.ErrCodecFailure)
		}
		var p raw.Dictionary
		if i < len(params) {
			p = params[i]
		}
		out, err := dec.Decode(data, p)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", name, err)
		}
		data = out
	}
	return data, nil
}

// EncodeFlate compresses data and returns the payload for a FlateDecode
// stream.
func EncodeFlate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

// FlateDecode

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }

func (flateDecoder) Decode(input []byte, params raw.Dictionary) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib: %v: %w", err, raw.ErrCodecFailure)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("zlib: %v: %w", err, raw.ErrCodecFailure)
	}
	// Truncated flate data with a partial result is tolerated; writers in
	// the wild omit the final block surprisingly often.
	return applyPredictor(out, params)
}

// LZWDecode

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }

func (lzwDecoder) Decode(input []byte, params raw.Dictionary) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(input), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("lzw: %v: %w", err, raw.ErrCodecFailure)
	}
	return applyPredictor(out, params)
}

// ASCIIHexDecode

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }

func (asciiHexDecoder) Decode(input []byte, params raw.Dictionary) ([]byte, error) {
	var clean []byte
	for _, c := range input {
		if c == '>' {
			break
		}
		if isHexDigit(c) {
			clean = append(clean, c)
		}
	}
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, hex.DecodedLen(len(clean)))
	if _, err := hex.Decode(out, clean); err != nil {
		return nil, fmt.Errorf("asciihex: %v: %w", err, raw.ErrCodecFailure)
	}
	return out, nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// ASCII85Decode

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }

func (ascii85Decoder) Decode(input []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(input)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	trimmed = bytes.TrimSuffix(trimmed, []byte("~>"))
	out := make([]byte, len(trimmed)*4/5+4)
	n, _, err := ascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, fmt.Errorf("ascii85: %v: %w", err, raw.ErrCodecFailure)
	}
	return out[:n], nil
}

// RunLengthDecode

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }

func (runLengthDecoder) Decode(input []byte, params raw.Dictionary) ([]byte, error) {
	var out []byte
	for i := 0; i < len(input); {
		l := input[i]
		i++
		if l == 128 {
			break
		}
		if l < 128 {
			n := int(l) + 1
			if i+n > len(input) {
				return nil, fmt.Errorf("runlength: truncated run: %w", raw.ErrCodecFailure)
			}
			out = append(out, input[i:i+n]...)
			i += n
		} else {
			if i >= len(input) {
				return nil, fmt.Errorf("runlength: truncated repeat: %w", raw.ErrCodecFailure)
			}
			n := 257 - int(l)
			for k := 0; k < n; k++ {
				out = append(out, input[i])
			}
			i++
		}
	}
	return out, nil
}

// applyPredictor reverses the PNG/TIFF predictors declared in /DecodeParms.
// Cross-reference streams almost always use PNG Up (predictor 12).
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	if params == nil {
		return data, nil
	}
	predictor := int(raw.Int(raw.DictGet(nil, params, "Predictor"), 1))
	if predictor <= 1 {
		return data, nil
	}
	colors := int(raw.Int(raw.DictGet(nil, params, "Colors"), 1))
	bpc := int(raw.Int(raw.DictGet(nil, params, "BitsPerComponent"), 8))
	columns := int(raw.Int(raw.DictGet(nil, params, "Columns"), 1))
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8

	if predictor == 2 {
		// TIFF horizontal differencing.
		if bpc != 8 {
			return nil, fmt.Errorf("tiff predictor with bpc %d: %w", bpc, raw.ErrCodecFailure)
		}
		for row := 0; row+rowLen <= len(data); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				data[row+i] += data[row+i-bpp]
			}
		}
		return data, nil
	}

	// PNG predictors: each row is prefixed by a filter-type byte.
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		rowData := data[r*stride : (r+1)*stride]
		ft := rowData[0]
		cur := append([]byte(nil), rowData[1:]...)
		switch ft {
		case 0: // None
		case 1: // Sub
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2: // Up
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3: // Average
			for i := 0; i < rowLen; i++ {
				left := 0
				if i >= bpp {
					left = int(cur[i-bpp])
				}
				cur[i] += byte((left + int(prev[i])) / 2)
			}
		case 4: // Paeth
			for i := 0; i < rowLen; i++ {
				left, upLeft := 0, 0
				if i >= bpp {
					left = int(cur[i-bpp])
					upLeft = int(prev[i-bpp])
				}
				cur[i] += paeth(left, int(prev[i]), upLeft)
			}
		default:
			return nil, fmt.Errorf("png predictor filter type %d: %w", ft, raw.ErrCodecFailure)
		}
		out = append(out, cur...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c int) byte {
	p := a + b - c
	pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
	if pa <= pb && pa <= pc {
		return byte(a)
	}
	if pb <= pc {
		return byte(b)
	}
	return byte(c)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
