package semtable

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ghetzel/go-stockutil/log"
	"github.com/go-gota/gota/dataframe"
	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// DecodeText converts text of unknown character encoding into UTF-8.  The
// encoding is detected from the content; input that is already UTF-8 is
// returned as-is, minus any byte order mark.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if len(data) == 0 {
		return data, nil
	}

	result, err := chardet.NewTextDetector().DetectBest(data)

	if err != nil {
		// undetectable content passes through untouched
		return data, nil
	}

	var charset = strings.ToLower(result.Charset)

	if charset == `utf-8` || charset == `ascii` {
		return data, nil
	}

	var decoder encoding.Encoding

	if strings.HasPrefix(charset, `utf-16`) {
		var endianness = unicode.BigEndian

		if strings.HasSuffix(charset, `le`) {
			endianness = unicode.LittleEndian
		}

		decoder = unicode.UTF16(endianness, unicode.UseBOM)
	} else if enc, err := htmlindex.Get(result.Charset); err == nil {
		decoder = enc
	} else {
		return nil, fmt.Errorf("unsupported encoding %q", result.Charset)
	}

	decoded, err := decoder.NewDecoder().Bytes(data)

	if err != nil {
		return nil, fmt.Errorf("decode %s: %v", result.Charset, err)
	}

	log.Debugf("transcoded %d bytes from %s", len(data), result.Charset)
	return decoded, nil
}

// ReadCSV loads CSV content of unknown character encoding into a dataframe.
func ReadCSV(data []byte) (dataframe.DataFrame, error) {
	decoded, err := DecodeText(data)

	if err != nil {
		return dataframe.DataFrame{}, err
	}

	var df = dataframe.ReadCSV(bytes.NewReader(decoded))
	return df, df.Err
}

// ReadCSVFile loads a CSV file of unknown character encoding into a dataframe.
func ReadCSVFile(path string) (dataframe.DataFrame, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return dataframe.DataFrame{}, err
	}

	return ReadCSV(data)
}
