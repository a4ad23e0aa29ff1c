package rpc

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
)

// Client holds one TCP connection to an RPC server and serializes
// calls over it. Safe for concurrent use; calls queue on an internal
// mutex so responses pair up with their requests.
type Client struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
	mu   sync.Mutex
	seq  atomic.Int64
}

// Dial opens a connection to the server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Call invokes method with params and, when result is non-nil, decodes
// the response payload into it.
func (c *Client) Call(method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	req := Request{
		Method: method,
		ID:     strconv.FormatInt(c.seq.Add(1), 10),
		Params: raw,
	}

	resp, err := c.roundTrip(&req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("rpc error: %s", resp.Error)
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &resp, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
