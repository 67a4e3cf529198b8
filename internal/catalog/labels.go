package catalog

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"library-circulation/internal/circulation"
)

// ラベル印刷ソフト（Windows）に渡す CSV の文字コード
const (
	EncodingCP932   = "cp932"
	EncodingUTF8    = "utf-8"
	EncodingUTF16LE = "utf-16le"
)

// labelEncoding: 未知の指定は ok=false。utf-8 は変換なし（nil）
func labelEncoding(name string) (enc encoding.Encoding, contentType string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", EncodingCP932, "shift_jis", "sjis":
		// Windowsの「ANSI（CP932）」相当
		return japanese.ShiftJIS, "text/csv; charset=Shift_JIS", true
	case EncodingUTF8, "utf8":
		return nil, "text/csv; charset=utf-8", true
	case EncodingUTF16LE, "utf16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), "text/csv; charset=utf-16le", true
	default:
		return nil, "", false
	}
}

// writeLabelsCSV は1冊1行（登録番号, 書誌ID, 図書館ID, 蔵書ID）を書く。ヘッダ行なし
func writeLabelsCSV(w io.Writer, copies []circulation.BookCopy, enc encoding.Encoding) error {
	out := w
	var tw *transform.Writer
	if enc != nil {
		tw = transform.NewWriter(w, enc.NewEncoder())
		out = tw
	}

	cw := csv.NewWriter(out)
	for _, c := range copies {
		record := []string{
			c.InventoryNumber,
			strconv.FormatInt(c.BookID, 10),
			strconv.FormatInt(c.LibraryID, 10),
			strconv.FormatInt(c.ID, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if tw != nil {
		return tw.Close()
	}
	return nil
}
