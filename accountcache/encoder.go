package accountcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	recordFormatVersionCurrent = 2
	recordFormatVersionV1      = 1

	tokenFormatVersionCurrent = 1
)

// EncodeRecord serialises r in the current format.
func EncodeRecord(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordFormatVersionCurrent)

	for _, s := range []string{r.HomeAccountID, r.LocalAccountID, r.Environment, r.TenantID, r.Username, r.Name} {
		if err := writeShort(&buf, s); err != nil {
			return nil, err
		}
	}
	if err := writeLong(&buf, r.IDToken); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, r.RefreshToken); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.CachedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeRecord parses a v1 or v2 record. It also reports the version read so
// that callers can migrate old blobs.
func DecodeRecord(data []byte) (*Record, uint8, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, 0, err
	}
	if version != recordFormatVersionCurrent && version != recordFormatVersionV1 {
		return nil, version, errors.New("invalid record version")
	}

	r := &Record{}
	for _, dst := range []*string{&r.HomeAccountID, &r.LocalAccountID, &r.Environment, &r.TenantID, &r.Username, &r.Name} {
		if *dst, err = readShort(reader); err != nil {
			return nil, version, err
		}
	}
	if r.IDToken, err = readLong(reader); err != nil {
		return nil, version, err
	}
	if version == recordFormatVersionCurrent {
		if r.RefreshToken, err = readLong(reader); err != nil {
			return nil, version, err
		}
	}
	if err := binary.Read(reader, binary.BigEndian, &r.CachedAt); err != nil {
		return nil, version, err
	}
	if reader.Len() != 0 {
		return nil, version, errors.New("trailing bytes in record")
	}

	return r, version, nil
}

// EncodeToken serialises t.
func EncodeToken(t *TokenEntry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenFormatVersionCurrent)
	if err := writeLong(&buf, t.AccessToken); err != nil {
		return nil, err
	}
	if len(t.Scopes) > math.MaxUint8 {
		return nil, errors.New("too many scopes")
	}
	buf.WriteByte(byte(len(t.Scopes)))
	for _, s := range t.Scopes {
		if err := writeShort(&buf, s); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, t.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeToken parses a token blob.
func DecodeToken(data []byte) (*TokenEntry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenFormatVersionCurrent {
		return nil, errors.New("invalid token version")
	}

	t := &TokenEntry{}
	if t.AccessToken, err = readLong(reader); err != nil {
		return nil, err
	}
	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	t.Scopes = make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		s, err := readShort(reader)
		if err != nil {
			return nil, err
		}
		t.Scopes = append(t.Scopes, s)
	}
	if err := binary.Read(reader, binary.BigEndian, &t.ExpiresAt); err != nil {
		return nil, err
	}

	return t, nil
}

func writeShort(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func writeLong(buf *bytes.Buffer, s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readShort(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readLong(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readN(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
