package segment

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
)

// Length field files store one little-endian uint32 per document, in
// document id order, between a header naming the field and a crc32 footer.
const (
	LengthMagic     uint32 = 0x5350444c
	LengthVersion   uint32 = 1
	LengthExtension        = ".len"
	maxFieldNameLen        = 1 << 10
)

// LengthFileName returns the file name holding the values of a length field.
func LengthFileName(field string) string {
	return field + LengthExtension
}

// WriteLengths atomically writes the length field file for field in dir.
func WriteLengths(ctx context.Context, dir, field string, lengths []uint32) (size int64, err error) {
	if len(field) == 0 || len(field) > maxFieldNameLen {
		return 0, fmt.Errorf("invalid length field name %q", field)
	}
	finalPath := filepath.Join(dir, LengthFileName(field))
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp length file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	crc := crc32.NewIEEE()
	bw := bufio.NewWriterSize(io.MultiWriter(f, crc), 1<<16)
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], LengthMagic)
	binary.LittleEndian.PutUint32(header[4:8], LengthVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(lengths)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(field)))
	if _, err := bw.Write(header); err != nil {
		return 0, fmt.Errorf("writing length header: %w", err)
	}
	if _, err := bw.WriteString(field); err != nil {
		return 0, fmt.Errorf("writing length field name: %w", err)
	}
	var buf [4]byte
	for i, l := range lengths {
		if i%65536 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("writing lengths: %w", err)
			}
		}
		binary.LittleEndian.PutUint32(buf[:], l)
		if _, err := bw.Write(buf[:]); err != nil {
			return 0, fmt.Errorf("writing lengths: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("flushing lengths: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], crc.Sum32())
	if _, err := f.Write(buf[:]); err != nil {
		return 0, fmt.Errorf("writing length footer: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("syncing length file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing length file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming length file: %w", err)
	}
	return int64(16+len(field)+4*len(lengths)) + 4, nil
}

// ReadLengths loads the length field file for field from dir. A missing file
// is reported with an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadLengths(dir, field string) ([]uint32, error) {
	path := filepath.Join(dir, LengthFileName(field))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening length file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("inspecting length file: %w", err)
	}

	crc := crc32.NewIEEE()
	br := bufio.NewReaderSize(f, 1<<16)
	tr := io.TeeReader(br, crc)
	header := make([]byte, 16)
	if _, err := io.ReadFull(tr, header); err != nil {
		return nil, fmt.Errorf("reading length header: %w", err)
	}
	if magic := binary.LittleEndian.Uint32(header[0:4]); magic != LengthMagic {
		return nil, fmt.Errorf("invalid length file %s: bad magic bytes %x", path, magic)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != LengthVersion {
		return nil, fmt.Errorf("unsupported length file version %d", v)
	}
	count := binary.LittleEndian.Uint32(header[8:12])
	nameLen := binary.LittleEndian.Uint32(header[12:16])
	if nameLen == 0 || nameLen > maxFieldNameLen {
		return nil, fmt.Errorf("invalid field name length %d in %s", nameLen, path)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(tr, name); err != nil {
		return nil, fmt.Errorf("reading length field name: %w", err)
	}
	if want := int64(16) + int64(nameLen) + 4*int64(count) + 4; want != info.Size() {
		return nil, fmt.Errorf("length file %s holds %d bytes, header implies %d", path, info.Size(), want)
	}
	if string(name) != field {
		return nil, fmt.Errorf("length file %s holds field %q, want %q", path, name, field)
	}
	lengths := make([]uint32, count)
	var buf [4]byte
	for i := range lengths {
		if _, err := io.ReadFull(tr, buf[:]); err != nil {
			return nil, fmt.Errorf("reading length %d of %d: %w", i, count, err)
		}
		lengths[i] = binary.LittleEndian.Uint32(buf[:])
	}
	sum := crc.Sum32()
	if _, err := io.ReadFull(br, buf[:]); err != nil {
		return nil, fmt.Errorf("reading length footer: %w", err)
	}
	if binary.LittleEndian.Uint32(buf[:]) != sum {
		return nil, fmt.Errorf("length file %s checksum mismatch", path)
	}
	return lengths, nil
}
