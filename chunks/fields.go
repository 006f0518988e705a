package chunks

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"reflect"

	"github.com/bpfs/barfs/barerrors"
)

// EncodeFields 把一个指向结构体的指针按声明顺序编码成固定字段区的字节流。
// 字节序一律小端，和 segment 包的大端风格故意不同。
//
// 支持的字段类型：
//   - uint8/int8/uint16/int16/uint32/int32/uint64/int64 按其宽度原样编码
//   - string                         （无需标记）      u16 长度前缀 + 内容
//   - []byte                          `chunk:"data"`    u32 长度前缀 + 内容
//   - 其余切片（包括未标记的 []byte、[]string）         u16 个数前缀 + 元素
//   - uint32                          `chunk:"crc32"`   对本结构体此前已编码
//     的所有字节计算 IEEE CRC32 并写回
func EncodeFields(v interface{}) ([]byte, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("chunks: EncodeFields 需要一个结构体指针")
	}
	rv = rv.Elem()
	rt := rv.Type()

	var buf []byte
	var crcPositions []int

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := rv.Field(i)
		tag := sf.Tag.Get("chunk")

		if tag == "crc32" {
			crcPositions = append(crcPositions, len(buf))
			buf = append(buf, 0, 0, 0, 0)
			continue
		}

		enc, err := encodeField(fv, tag)
		if err != nil {
			return nil, fmt.Errorf("chunks: 编码字段 %s 失败: %w", sf.Name, err)
		}
		buf = append(buf, enc...)
	}

	for _, pos := range crcPositions {
		sum := crc32.ChecksumIEEE(buf[:pos])
		binary.LittleEndian.PutUint32(buf[pos:pos+4], sum)
	}

	return buf, nil
}

func encodeField(fv reflect.Value, tag string) ([]byte, error) {
	switch fv.Kind() {
	case reflect.Uint8, reflect.Int8:
		return []byte{byte(fv.Uint())}, nil
	case reflect.Uint16, reflect.Int16:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(fv.Uint()))
		return b, nil
	case reflect.Uint32, reflect.Int32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(fv.Uint()))
		return b, nil
	case reflect.Uint64, reflect.Int64:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, fv.Uint())
		return b, nil
	case reflect.String:
		s := fv.String()
		if len(s) > 0xFFFF {
			return nil, barerrors.ErrCorruptData
		}
		b := make([]byte, 2+len(s))
		binary.LittleEndian.PutUint16(b[0:2], uint16(len(s)))
		copy(b[2:], s)
		return b, nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 && tag == "data" {
			data := fv.Bytes()
			b := make([]byte, 4+len(data))
			binary.LittleEndian.PutUint32(b[0:4], uint32(len(data)))
			copy(b[4:], data)
			return b, nil
		}
		n := fv.Len()
		if n > 0xFFFF {
			return nil, barerrors.ErrCorruptData
		}
		var out []byte
		head := make([]byte, 2)
		binary.LittleEndian.PutUint16(head, uint16(n))
		out = append(out, head...)
		for i := 0; i < n; i++ {
			enc, err := encodeField(fv.Index(i), "")
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("chunks: 不支持的字段类型 %s", fv.Kind())
	}
}

// DecodeFields 是 EncodeFields 的逆操作：从固定字段区的字节流解码进一个
// 结构体指针；遇到 crc32 标记字段时校验其覆盖的前缀字节，不匹配返回
// barerrors.ErrCorruptData
func DecodeFields(data []byte, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("chunks: DecodeFields 需要一个结构体指针")
	}
	rv = rv.Elem()
	rt := rv.Type()

	pos := 0
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := rv.Field(i)
		tag := sf.Tag.Get("chunk")

		if tag == "crc32" {
			if pos+4 > len(data) {
				return barerrors.ErrCorruptData
			}
			want := binary.LittleEndian.Uint32(data[pos : pos+4])
			got := crc32.ChecksumIEEE(data[:pos])
			if want != got {
				return fmt.Errorf("%w: crc32 mismatch in field %s", barerrors.ErrCorruptData, sf.Name)
			}
			fv.SetUint(uint64(want))
			pos += 4
			continue
		}

		n, err := decodeField(data[pos:], fv, tag)
		if err != nil {
			return fmt.Errorf("chunks: 解码字段 %s 失败: %w", sf.Name, err)
		}
		pos += n
	}
	return nil
}

func decodeField(data []byte, fv reflect.Value, tag string) (int, error) {
	switch fv.Kind() {
	case reflect.Uint8, reflect.Int8:
		if len(data) < 1 {
			return 0, barerrors.ErrCorruptData
		}
		fv.SetUint(uint64(data[0]))
		return 1, nil
	case reflect.Uint16, reflect.Int16:
		if len(data) < 2 {
			return 0, barerrors.ErrCorruptData
		}
		fv.SetUint(uint64(binary.LittleEndian.Uint16(data)))
		return 2, nil
	case reflect.Uint32, reflect.Int32:
		if len(data) < 4 {
			return 0, barerrors.ErrCorruptData
		}
		fv.SetUint(uint64(binary.LittleEndian.Uint32(data)))
		return 4, nil
	case reflect.Uint64, reflect.Int64:
		if len(data) < 8 {
			return 0, barerrors.ErrCorruptData
		}
		fv.SetUint(binary.LittleEndian.Uint64(data))
		return 8, nil
	case reflect.String:
		if len(data) < 2 {
			return 0, barerrors.ErrCorruptData
		}
		n := int(binary.LittleEndian.Uint16(data[0:2]))
		if len(data) < 2+n {
			return 0, barerrors.ErrCorruptData
		}
		fv.SetString(string(data[2 : 2+n]))
		return 2 + n, nil
	case reflect.Slice:
		if fv.Type().Elem().Kind() == reflect.Uint8 && tag == "data" {
			if len(data) < 4 {
				return 0, barerrors.ErrCorruptData
			}
			n := int(binary.LittleEndian.Uint32(data[0:4]))
			if len(data) < 4+n {
				return 0, barerrors.ErrCorruptData
			}
			out := make([]byte, n)
			copy(out, data[4:4+n])
			fv.SetBytes(out)
			return 4 + n, nil
		}
		if len(data) < 2 {
			return 0, barerrors.ErrCorruptData
		}
		count := int(binary.LittleEndian.Uint16(data[0:2]))
		pos := 2
		slice := reflect.MakeSlice(fv.Type(), count, count)
		for i := 0; i < count; i++ {
			n, err := decodeField(data[pos:], slice.Index(i), "")
			if err != nil {
				return 0, err
			}
			pos += n
		}
		fv.Set(slice)
		return pos, nil
	default:
		return 0, fmt.Errorf("chunks: 不支持的字段类型 %s", fv.Kind())
	}
}

// SizeOfFields 预先计算一个结构体编码后占用的字节数，不做实际编码。
// 对应原始实现里的 Chunk_getSize：读取端对不含变长字段的结构体用它得
// 到固定字段区的精确字节数，再交给 ReadFixed（spec §9 的开放问题之一）。
// 含 string/切片字段时结果取决于 v 里的实际内容。
func SizeOfFields(v interface{}) (int, error) {
	buf, err := EncodeFields(v)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}
