// Package fcp implements the content store over the Freenet Client Protocol
// (FCPv2): a line-oriented TCP protocol of named messages with optional data
// sections. Each operation opens its own connection so concurrent inserts
// and checks never interleave on one stream.
package fcp

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/cryptad/update-releaser/pkg/domain/interfaces"
	"github.com/cryptad/update-releaser/pkg/domain/types"
)

// PutFailed code for a key collision. Content-addressed keys derive the
// address from the bytes, so a collision means the identical content is
// already present; the insert contract treats that as success.
const putCodeCollision = 9

// GetFailed codes that mean "not present", as opposed to transport trouble.
var getCodesNotFound = map[int]bool{
	13: true, // data not found
	21: true, // too many path components
	25: true, // not all data found
}

// Config holds the node endpoint.
type Config struct {
	Host string
	Port int
}

// Client talks to one FCP node.
type Client struct {
	cfg Config
}

// New creates an FCP content store client.
func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9481
	}
	return &Client{cfg: cfg}
}

var _ interfaces.ContentStore = (*Client)(nil)

// InsertBytes inserts a payload under the target URI and returns the
// resulting address.
func (c *Client) InsertBytes(ctx context.Context, uri string, data []byte, opts interfaces.PutOptions) (string, error) {
	return c.put(ctx, uri, data, opts)
}

// InsertFile inserts a local file under the target URI. The file is read
// into memory and uploaded directly; artifacts in this pipeline are small
// enough that direct upload beats negotiating disk access with the node.
func (c *Client) InsertFile(ctx context.Context, uri string, path string, opts interfaces.PutOptions) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read file for insert", goerr.V("path", path))
	}
	return c.put(ctx, uri, data, opts)
}

// Fetch downloads the full content behind a URI.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	identifier := newIdentifier()
	req := &message{
		Name: "ClientGet",
		Fields: map[string]string{
			"URI":         uri,
			"Identifier":  identifier,
			"ReturnType":  "direct",
			"Verbosity":   "0",
			"Persistence": "connection",
			"Global":      "false",
		},
	}
	if err := writeMessage(s.w, req); err != nil {
		return nil, err
	}

	for {
		resp, err := s.read()
		if err != nil {
			return nil, err
		}
		if resp.field("Identifier") != identifier {
			continue
		}
		switch resp.Name {
		case "AllData":
			return resp.Data, nil
		case "GetFailed":
			return nil, getFailedError(uri, resp)
		case "ProtocolError":
			return nil, protocolError(resp)
		}
	}
}

// CheckRetrievable performs a shallow existence check: the node locates the
// data but returns no payload.
func (c *Client) CheckRetrievable(ctx context.Context, uri string) (bool, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return false, err
	}
	defer s.close()

	identifier := newIdentifier()
	req := &message{
		Name: "ClientGet",
		Fields: map[string]string{
			"URI":         uri,
			"Identifier":  identifier,
			"ReturnType":  "none",
			"Verbosity":   "0",
			"Persistence": "connection",
			"Global":      "false",
		},
	}
	if err := writeMessage(s.w, req); err != nil {
		return false, err
	}

	for {
		resp, err := s.read()
		if err != nil {
			return false, err
		}
		if resp.field("Identifier") != identifier {
			continue
		}
		switch resp.Name {
		case "DataFound":
			return true, nil
		case "GetFailed":
			code, _ := strconv.Atoi(resp.field("Code"))
			if getCodesNotFound[code] {
				return false, nil
			}
			return false, getFailedError(uri, resp)
		case "ProtocolError":
			return false, protocolError(resp)
		}
	}
}

// GenerateKeypair creates a fresh channel key pair and returns the private
// and public base URIs (USK roots with the descriptor site name appended).
func (c *Client) GenerateKeypair(ctx context.Context) (string, string, error) {
	s, err := c.dial(ctx)
	if err != nil {
		return "", "", err
	}
	defer s.close()

	identifier := newIdentifier()
	req := &message{
		Name:   "GenerateSSK",
		Fields: map[string]string{"Identifier": identifier},
	}
	if err := writeMessage(s.w, req); err != nil {
		return "", "", err
	}

	for {
		resp, err := s.read()
		if err != nil {
			return "", "", err
		}
		if resp.field("Identifier") != identifier {
			continue
		}
		switch resp.Name {
		case "SSKKeypair":
			privateBase, err := InfoBase(resp.field("InsertURI"))
			if err != nil {
				return "", "", err
			}
			publicBase, err := InfoBase(resp.field("RequestURI"))
			if err != nil {
				return "", "", err
			}
			return privateBase, publicBase, nil
		case "ProtocolError":
			return "", "", protocolError(resp)
		}
	}
}

// DerivePublicBase resolves the public base of a private channel key. The
// node reports the request-side URI when data is inserted under the private
// key, so a tiny probe document under a throwaway docname yields the public
// root without touching any channel edition.
func (c *Client) DerivePublicBase(ctx context.Context, privateBase string) (string, error) {
	root, err := rootFromInfoBase(privateBase)
	if err != nil {
		return "", err
	}
	probeURI := strings.Replace(root, "USK@", "SSK@", 1) + "pubkey-probe-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	resultURI, err := c.put(ctx, probeURI, []byte("probe\n"), interfaces.PutOptions{
		Priority:    2,
		Persistence: "connection",
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to derive public key from private staging key")
	}

	slash := strings.LastIndex(resultURI, "/")
	if slash < 0 {
		return "", goerr.New("unexpected probe result URI", goerr.V("uri", resultURI))
	}
	return InfoBase(resultURI[:slash])
}

func (c *Client) put(ctx context.Context, uri string, data []byte, opts interfaces.PutOptions) (string, error) {
	logger := ctxlog.From(ctx)
	s, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer s.close()

	identifier := newIdentifier()
	if opts.GlobalQueue {
		watch := &message{Name: "WatchGlobal", Fields: map[string]string{"Enabled": "true"}}
		if err := writeMessage(s.w, watch); err != nil {
			return "", err
		}
	}

	persistence := opts.Persistence
	if persistence == "" {
		persistence = "connection"
	}
	req := &message{
		Name: "ClientPut",
		Fields: map[string]string{
			"URI":           uri,
			"Identifier":    identifier,
			"Verbosity":     "0",
			"PriorityClass": strconv.Itoa(opts.Priority),
			"Persistence":   persistence,
			"Global":        strconv.FormatBool(opts.GlobalQueue),
			"UploadFrom":    "direct",
		},
		Data: data,
	}

	logger.Debug("FCP put start",
		"identifier", identifier,
		"uri", uri,
		"size", len(data),
		"persistence", persistence,
		"global", opts.GlobalQueue,
		"priority", opts.Priority,
	)
	startedAt := time.Now()

	if err := writeMessage(s.w, req); err != nil {
		return "", err
	}

	for {
		resp, err := s.read()
		if err != nil {
			return "", err
		}
		if resp.field("Identifier") != identifier {
			continue
		}
		switch resp.Name {
		case "PutSuccessful":
			resultURI := resp.field("URI")
			logger.Debug("FCP put complete",
				"identifier", identifier,
				"uri", resultURI,
				"elapsed", time.Since(startedAt),
			)
			return resultURI, nil
		case "PutFailed":
			code, _ := strconv.Atoi(resp.field("Code"))
			if code == putCodeCollision {
				// Identical content is already present under this key.
				resultURI := resp.field("ExpectedURI")
				if resultURI == "" {
					resultURI = uri
				}
				logger.Debug("FCP put collision treated as success",
					"identifier", identifier,
					"uri", resultURI,
				)
				return resultURI, nil
			}
			return "", goerr.New("FCP insert failed",
				goerr.T(types.ErrTagTransient),
				goerr.V("uri", uri),
				goerr.V("code", code),
				goerr.V("description", resp.field("CodeDescription")),
				goerr.V("extra", resp.field("ExtraDescription")),
			)
		case "ProtocolError":
			return "", protocolError(resp)
		}
	}
}

type session struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func (c *Client) dial(ctx context.Context) (*session, error) {
	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect to FCP node",
			goerr.T(types.ErrTagTransient), goerr.V("addr", addr))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	s := &session{conn: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
	hello := &message{
		Name: "ClientHello",
		Fields: map[string]string{
			"Name":            "update-releaser-" + newIdentifier(),
			"ExpectedVersion": "2.0",
		},
	}
	if err := writeMessage(s.w, hello); err != nil {
		s.close()
		return nil, err
	}
	resp, err := s.read()
	if err != nil {
		s.close()
		return nil, err
	}
	if resp.Name != "NodeHello" {
		s.close()
		return nil, goerr.New("unexpected FCP handshake response",
			goerr.T(types.ErrTagTransient), goerr.V("message", resp.Name))
	}
	return s, nil
}

func (s *session) read() (*message, error) {
	return readMessage(s.r)
}

func (s *session) close() {
	_ = s.conn.Close()
}

func getFailedError(uri string, resp *message) error {
	code, _ := strconv.Atoi(resp.field("Code"))
	tag := types.ErrTagTransient
	if getCodesNotFound[code] {
		tag = types.ErrTagUnavailable
	}
	return goerr.New("FCP retrieval failed",
		goerr.T(tag),
		goerr.V("uri", uri),
		goerr.V("code", code),
		goerr.V("description", resp.field("CodeDescription")),
	)
}

func protocolError(resp *message) error {
	return goerr.New("FCP protocol error",
		goerr.V("code", resp.field("Code")),
		goerr.V("description", resp.field("CodeDescription")),
		goerr.V("extra", resp.field("ExtraDescription")),
	)
}

func newIdentifier() string {
	return "id" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
