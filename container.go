package huffpack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/seiflotfy/huffpack/bitpack"
)

// Wire format:
//
//	fileCount = int32 little-endian
//	codeCount = int32 little-endian
//	repeat codeCount times:
//	  symbol     = byte
//	  codeLength = int32 little-endian
//	  code       = codeLength bytes of ASCII '0'/'1'
//	repeat fileCount times:
//	  nameLength = int32 little-endian
//	  name       = nameLength bytes
//	  bitLength  = int32 little-endian
//	  packed     = ceil(bitLength/8) bytes, MSB-first
//	  lastBits   = int32 little-endian (1-8; 8 when bitLength%8 == 0)
//
// The code table always precedes the records, and records keep input order.

// Record is one encoded file.
type Record struct {
	Name   string
	Packed bitpack.Packed
}

// Container holds a code table and the records encoded with it.
type Container struct {
	Codes   *CodeTable
	Records []Record
}

// Files returns the number of records.
func (c *Container) Files() int {
	return len(c.Records)
}

// PackedBytes returns the total size of the packed record payloads.
func (c *Container) PackedBytes() int {
	n := 0
	for i := range c.Records {
		n += len(c.Records[i].Packed.Data)
	}
	return n
}

func (c *Container) codeCount() int {
	if c.Codes == nil {
		return 0
	}
	return c.Codes.Len()
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		return int64(n), err
	}
	if n != len(b) {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}

func writeInt32(w io.Writer, v int) (int64, error) {
	if v < 0 || v > maxInt32 {
		return 0, fmt.Errorf("value %d does not fit in int32", v)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return writeBytes(w, buf[:])
}

func validateRecord(rec *Record, haveCodes bool) error {
	if len(rec.Name) < minNameLen || len(rec.Name) > maxNameLen {
		return fmt.Errorf("%w: name length %d out of range [%d, %d]", ErrMalformedRecord, len(rec.Name), minNameLen, maxNameLen)
	}
	if err := rec.Packed.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if rec.Packed.Bits > maxInt32 {
		return fmt.Errorf("%w: bit length %d does not fit in int32", ErrMalformedRecord, rec.Packed.Bits)
	}
	if rec.Packed.Bits > 0 && !haveCodes {
		return fmt.Errorf("%w: record carries %d bits but the code table is empty", ErrMalformedHeader, rec.Packed.Bits)
	}
	return nil
}

// WriteTo serializes the Container to an io.Writer.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	codeCount := c.codeCount()
	for i := range c.Records {
		if err := validateRecord(&c.Records[i], codeCount > 0); err != nil {
			return 0, fmt.Errorf("invalid container: record %d: %w", i, err)
		}
	}

	var total int64
	add := func(n int64, err error) error {
		total += n
		return err
	}

	if err := add(writeInt32(w, len(c.Records))); err != nil {
		return total, err
	}
	if err := add(writeInt32(w, codeCount)); err != nil {
		return total, err
	}

	if c.Codes != nil {
		for _, e := range c.Codes.Entries() {
			if err := add(writeBytes(w, []byte{e.Symbol})); err != nil {
				return total, err
			}
			if err := add(writeInt32(w, len(e.Bits))); err != nil {
				return total, err
			}
			if err := add(writeBytes(w, []byte(e.Bits))); err != nil {
				return total, err
			}
		}
	}

	for i := range c.Records {
		rec := &c.Records[i]
		if err := add(writeInt32(w, len(rec.Name))); err != nil {
			return total, err
		}
		if err := add(writeBytes(w, []byte(rec.Name))); err != nil {
			return total, err
		}
		if err := add(writeInt32(w, rec.Packed.Bits)); err != nil {
			return total, err
		}
		if err := add(writeBytes(w, rec.Packed.Data)); err != nil {
			return total, err
		}
		if err := add(writeInt32(w, rec.Packed.LastBits)); err != nil {
			return total, err
		}
	}
	return total, nil
}

// reader tracks the stream offset so every error names where the failing
// field started.
type reader struct {
	r       io.Reader
	total   int64
	scratch [4]byte
}

func (rd *reader) full(buf []byte, what string) error {
	offset := rd.total
	n, err := io.ReadFull(rd.r, buf)
	rd.total += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: read %s at offset %d: %w", ErrTruncatedRecord, what, offset, err)
		}
		return fmt.Errorf("read %s at offset %d: %w", what, offset, err)
	}
	return nil
}

func (rd *reader) readInt32(what string) (int, error) {
	if err := rd.full(rd.scratch[:], what); err != nil {
		return 0, err
	}
	return int(int32(binary.LittleEndian.Uint32(rd.scratch[:]))), nil
}

// ReadFrom deserializes a Container from an io.Reader using the default
// allocation limit.
func (c *Container) ReadFrom(r io.Reader) (int64, error) {
	return c.readFrom(r, maxRecordBytes)
}

func (c *Container) readFrom(r io.Reader, limit int) (int64, error) {
	rd := &reader{r: r}

	fileCount, err := rd.readInt32("file count")
	if err != nil {
		return rd.total, err
	}
	if fileCount < 0 {
		return rd.total, fmt.Errorf("%w: negative file count %d", ErrMalformedHeader, fileCount)
	}
	codeOffset := rd.total
	codeCount, err := rd.readInt32("code count")
	if err != nil {
		return rd.total, err
	}
	if codeCount < 0 || codeCount > alphabetSize {
		return rd.total, fmt.Errorf("%w: code count %d at offset %d out of range [0, %d]", ErrMalformedHeader, codeCount, codeOffset, alphabetSize)
	}

	entries := make([]CodeEntry, 0, codeCount)
	var codeBuf [maxCodeLen]byte
	for i := 0; i < codeCount; i++ {
		var sym [1]byte
		if err := rd.full(sym[:], fmt.Sprintf("symbol of code %d", i)); err != nil {
			return rd.total, err
		}
		lenOffset := rd.total
		codeLen, err := rd.readInt32(fmt.Sprintf("length of code %d", i))
		if err != nil {
			return rd.total, err
		}
		if codeLen < 1 || codeLen > maxCodeLen {
			return rd.total, fmt.Errorf("%w: code %d length %d at offset %d out of range [1, %d]", ErrMalformedHeader, i, codeLen, lenOffset, maxCodeLen)
		}
		if err := rd.full(codeBuf[:codeLen], fmt.Sprintf("bits of code %d", i)); err != nil {
			return rd.total, err
		}
		entries = append(entries, CodeEntry{Symbol: sym[0], Bits: string(codeBuf[:codeLen])})
	}
	codes, err := NewCodeTable(entries)
	if err != nil {
		return rd.total, fmt.Errorf("code table at offset %d: %w", codeOffset, err)
	}

	records := make([]Record, 0, min(fileCount, 1024))
	for i := 0; i < fileCount; i++ {
		rec, err := rd.record(i, limit)
		if err != nil {
			return rd.total, err
		}
		if rec.Packed.Bits > 0 && codeCount == 0 {
			return rd.total, fmt.Errorf("%w: record %d carries %d bits but the code table is empty", ErrMalformedHeader, i, rec.Packed.Bits)
		}
		records = append(records, rec)
	}

	*c = Container{Codes: codes, Records: records}
	return rd.total, nil
}

func (rd *reader) record(i, limit int) (Record, error) {
	nameOffset := rd.total
	nameLen, err := rd.readInt32(fmt.Sprintf("name length of record %d", i))
	if err != nil {
		return Record{}, err
	}
	if nameLen < minNameLen || nameLen > maxNameLen {
		return Record{}, fmt.Errorf("%w: record %d name length %d at offset %d out of range [%d, %d]",
			ErrMalformedRecord, i, nameLen, nameOffset, minNameLen, maxNameLen)
	}
	name := make([]byte, nameLen)
	if err := rd.full(name, fmt.Sprintf("name of record %d", i)); err != nil {
		return Record{}, err
	}

	bitsOffset := rd.total
	bits, err := rd.readInt32(fmt.Sprintf("bit length of record %q", name))
	if err != nil {
		return Record{}, err
	}
	if bits < 0 {
		return Record{}, fmt.Errorf("%w: record %q bit length %d at offset %d is negative", ErrMalformedRecord, name, bits, bitsOffset)
	}
	byteLen := bitpack.ByteLen(bits)
	if byteLen > limit {
		return Record{}, fmt.Errorf("%w: record %q needs %d bytes, limit is %d", ErrAllocationFailure, name, byteLen, limit)
	}
	data := make([]byte, byteLen)
	if err := rd.full(data, fmt.Sprintf("packed bits of record %q", name)); err != nil {
		return Record{}, err
	}

	lastBits, err := rd.readInt32(fmt.Sprintf("trailing bit count of record %q", name))
	if err != nil {
		return Record{}, err
	}
	return Record{
		Name:   string(name),
		Packed: bitpack.Packed{Bits: bits, Data: data, LastBits: lastBits},
	}, nil
}
