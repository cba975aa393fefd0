package fcp

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// message is one FCPv2 protocol message: a name line, Field=Value lines, and
// either EndMessage or a Data section of DataLength bytes.
type message struct {
	Name   string
	Fields map[string]string
	Data   []byte
}

func (m *message) field(name string) string {
	return m.Fields[name]
}

func writeMessage(w *bufio.Writer, msg *message) error {
	if _, err := w.WriteString(msg.Name + "\n"); err != nil {
		return goerr.Wrap(err, "failed to write message name", goerr.T(types.ErrTagTransient))
	}
	for key, value := range msg.Fields {
		if _, err := w.WriteString(key + "=" + value + "\n"); err != nil {
			return goerr.Wrap(err, "failed to write message field", goerr.T(types.ErrTagTransient))
		}
	}
	if msg.Data != nil {
		if _, err := w.WriteString("DataLength=" + strconv.Itoa(len(msg.Data)) + "\n"); err != nil {
			return goerr.Wrap(err, "failed to write data length", goerr.T(types.ErrTagTransient))
		}
		if _, err := w.WriteString("Data\n"); err != nil {
			return goerr.Wrap(err, "failed to write data marker", goerr.T(types.ErrTagTransient))
		}
		if _, err := w.Write(msg.Data); err != nil {
			return goerr.Wrap(err, "failed to write data payload", goerr.T(types.ErrTagTransient))
		}
	} else {
		if _, err := w.WriteString("EndMessage\n"); err != nil {
			return goerr.Wrap(err, "failed to terminate message", goerr.T(types.ErrTagTransient))
		}
	}
	if err := w.Flush(); err != nil {
		return goerr.Wrap(err, "failed to flush message", goerr.T(types.ErrTagTransient))
	}
	return nil
}

func readMessage(r *bufio.Reader) (*message, error) {
	name, err := readLine(r)
	if err != nil {
		return nil, err
	}

	msg := &message{Name: name, Fields: map[string]string{}}
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		switch line {
		case "EndMessage":
			return msg, nil
		case "Data":
			length, err := strconv.Atoi(msg.field("DataLength"))
			if err != nil {
				return nil, goerr.New("message has Data section without valid DataLength",
					goerr.V("message", msg.Name))
			}
			msg.Data = make([]byte, length)
			if _, err := io.ReadFull(r, msg.Data); err != nil {
				return nil, goerr.Wrap(err, "failed to read data payload", goerr.T(types.ErrTagTransient))
			}
			return msg, nil
		default:
			key, value, found := strings.Cut(line, "=")
			if !found {
				return nil, goerr.New("malformed message field", goerr.V("line", line), goerr.V("message", msg.Name))
			}
			msg.Fields[key] = value
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", goerr.Wrap(err, "connection read failed", goerr.T(types.ErrTagTransient))
	}
	return strings.TrimRight(line, "\r\n"), nil
}
