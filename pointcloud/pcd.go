package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
	// PCDCompressed binary_compressed (LZF) format for pcd.
	PCDCompressed PCDType = 2
)

const pcdCommentChar = "#"

var pcdHeaderFields = []string{
	"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA",
}

type pcdHeader struct {
	fields []string
	size   []int
	points int
	data   PCDType
}

// ToPCD writes the cloud out in the given PCD variant with
// x y z intensity ring fields.
func ToPCD(cloud PointCloud, out io.Writer, outputType PCDType) error {
	var err error
	_, err = fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z intensity ring\n"+
		"SIZE 4 4 4 4 4\n"+
		"TYPE F F F F U\n"+
		"COUNT 1 1 1 1 1\n"+
		"WIDTH %d\nHEIGHT 1\nVIEWPOINT 0 0 0 1 0 0 0\nPOINTS %d\n",
		cloud.Size(), cloud.Size())
	if err != nil {
		return err
	}

	switch outputType {
	case PCDAscii:
		if _, err = fmt.Fprintf(out, "DATA ascii\n"); err != nil {
			return err
		}
		cloud.Iterate(func(pos r3.Vector, d Data) bool {
			_, err = fmt.Fprintf(out, "%f %f %f %f %d\n", pos.X, pos.Y, pos.Z, d.Intensity, d.Ring)
			return err == nil
		})
		return err
	case PCDBinary:
		if _, err = fmt.Fprintf(out, "DATA binary\n"); err != nil {
			return err
		}
		buf := make([]byte, 20)
		cloud.Iterate(func(pos r3.Vector, d Data) bool {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(float32(d.Intensity)))
			binary.LittleEndian.PutUint32(buf[16:], uint32(d.Ring))
			_, err = out.Write(buf)
			return err == nil
		})
		return err
	case PCDCompressed:
		if _, err = fmt.Fprintf(out, "DATA binary_compressed\n"); err != nil {
			return err
		}
		return writePCDCompressed(cloud, out)
	default:
		return errors.Errorf("unknown pcd type %d", outputType)
	}
}

// writePCDCompressed stores the body field-by-field (structure of arrays,
// as PCL does) and LZF-compresses it, prefixed by the compressed and
// uncompressed sizes.
func writePCDCompressed(cloud PointCloud, out io.Writer) error {
	n := cloud.Size()
	raw := make([]byte, 20*n)
	i := 0
	cloud.Iterate(func(pos r3.Vector, d Data) bool {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(pos.X)))
		binary.LittleEndian.PutUint32(raw[(n+i)*4:], math.Float32bits(float32(pos.Y)))
		binary.LittleEndian.PutUint32(raw[(2*n+i)*4:], math.Float32bits(float32(pos.Z)))
		binary.LittleEndian.PutUint32(raw[(3*n+i)*4:], math.Float32bits(float32(d.Intensity)))
		binary.LittleEndian.PutUint32(raw[(4*n+i)*4:], uint32(d.Ring))
		i++
		return true
	})

	compressed := make([]byte, len(raw)+len(raw)/16+64+3)
	written, err := lzf.Compress(raw, compressed)
	if err != nil {
		return errors.Wrap(err, "lzf compression failed")
	}
	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(written))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err = out.Write(compressed[:written])
	return err
}

// ReadPCD reads a PCD cloud in any of the three data variants.
func ReadPCD(inRaw io.Reader) (PointCloud, error) {
	header := pcdHeader{}
	in := bufio.NewReader(inRaw)
	headerLineCount := 0
	for headerLineCount < len(pcdHeaderFields) {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "error reading header line %d", headerLineCount)
		}
		line, _, _ = strings.Cut(line, pcdCommentChar)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := parsePCDHeaderLine(line, headerLineCount, &header); err != nil {
			return nil, err
		}
		headerLineCount++
	}
	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	case PCDCompressed:
		return readPCDCompressed(in, header)
	default:
		return nil, errors.Errorf("unsupported pcd data type %v", header.data)
	}
}

func parsePCDHeaderLine(line string, lineCount int, header *pcdHeader) error {
	name := pcdHeaderFields[lineCount]
	field, value, _ := strings.Cut(line, " ")
	tokens := strings.Fields(value)
	if field != name {
		return errors.Errorf("line is supposed to start with %q but is %q", name, line)
	}
	switch name {
	case "FIELDS":
		header.fields = tokens
	case "SIZE":
		header.size = make([]int, len(tokens))
		for i, tok := range tokens {
			sz, err := strconv.Atoi(tok)
			if err != nil {
				return errors.Wrapf(err, "invalid SIZE field %q", tok)
			}
			header.size[i] = sz
		}
	case "POINTS":
		points, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrapf(err, "invalid POINTS field %q", value)
		}
		header.points = points
	case "DATA":
		switch value {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported DATA type %q", value)
		}
	default: // VERSION, TYPE, COUNT, WIDTH, HEIGHT, VIEWPOINT carry no surprises here
	}
	return nil
}

func fieldIndexes(header pcdHeader) (map[string]int, error) {
	idx := make(map[string]int, len(header.fields))
	for i, f := range header.fields {
		idx[f] = i
	}
	for _, required := range []string{"x", "y", "z"} {
		if _, ok := idx[required]; !ok {
			return nil, errors.Errorf("pcd file missing field %q", required)
		}
	}
	return idx, nil
}

func sliceToPoint(slice []float64, idx map[string]int) (r3.Vector, Data) {
	p := r3.Vector{X: slice[idx["x"]], Y: slice[idx["y"]], Z: slice[idx["z"]]}
	d := Data{}
	if i, ok := idx["intensity"]; ok {
		d.Intensity = slice[i]
	}
	if i, ok := idx["ring"]; ok {
		d.Ring = int(slice[i])
	}
	return p, d
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	idx, err := fieldIndexes(header)
	if err != nil {
		return nil, err
	}
	pc := NewWithPrealloc(header.points)
	for i := 0; i < header.points; i++ {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, err
		}
		tokens := strings.Fields(strings.TrimSpace(line))
		if len(tokens) != len(header.fields) {
			return nil, errors.Errorf("unexpected number of fields in point %d", i)
		}
		point := make([]float64, len(tokens))
		for j, token := range tokens {
			point[j], err = strconv.ParseFloat(token, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid point %d field %q", i, token)
			}
		}
		p, d := sliceToPoint(point, idx)
		if err := pc.Set(p, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	idx, err := fieldIndexes(header)
	if err != nil {
		return nil, err
	}
	pc := NewWithPrealloc(header.points)
	for i := 0; i < header.points; i++ {
		point := make([]float64, len(header.fields))
		for j := range header.fields {
			buf := make([]byte, header.size[j])
			if _, err := io.ReadFull(in, buf); err != nil {
				return nil, err
			}
			if header.size[j] != 4 {
				return nil, errors.Errorf("unsupported field size %d", header.size[j])
			}
			bits := binary.LittleEndian.Uint32(buf)
			if header.fields[j] == "ring" {
				point[j] = float64(bits)
			} else {
				point[j] = float64(math.Float32frombits(bits))
			}
		}
		p, d := sliceToPoint(point, idx)
		if err := pc.Set(p, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (PointCloud, error) {
	idx, err := fieldIndexes(header)
	if err != nil {
		return nil, err
	}
	sizes := make([]byte, 8)
	if _, err := io.ReadFull(in, sizes); err != nil {
		return nil, err
	}
	compressedSize := binary.LittleEndian.Uint32(sizes)
	uncompressedSize := binary.LittleEndian.Uint32(sizes[4:])
	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(in, compressed); err != nil {
		return nil, err
	}
	raw := make([]byte, uncompressedSize)
	written, err := lzf.Decompress(compressed, raw)
	if err != nil {
		return nil, errors.Wrap(err, "lzf decompression failed")
	}
	if written != int(uncompressedSize) {
		return nil, errors.Errorf("expected %d decompressed bytes, got %d", uncompressedSize, written)
	}

	// body is stored field-by-field
	n := header.points
	pc := NewWithPrealloc(n)
	point := make([]float64, len(header.fields))
	for i := 0; i < n; i++ {
		offset := 0
		for j := range header.fields {
			bits := binary.LittleEndian.Uint32(raw[(offset+i*header.size[j]):])
			if header.fields[j] == "ring" {
				point[j] = float64(bits)
			} else {
				point[j] = float64(math.Float32frombits(bits))
			}
			offset += n * header.size[j]
		}
		p, d := sliceToPoint(point, idx)
		if err := pc.Set(p, d); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// NewFromFile reads a PCD cloud from the named file.
func NewFromFile(fn string) (PointCloud, error) {
	f, err := os.Open(fn) //nolint:gosec
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return ReadPCD(f)
}

// WriteToFile writes the cloud to the named file.
func WriteToFile(cloud PointCloud, fn string, outputType PCDType) error {
	var buf bytes.Buffer
	if err := ToPCD(cloud, &buf, outputType); err != nil {
		return err
	}
	return os.WriteFile(fn, buf.Bytes(), 0o644)
}
