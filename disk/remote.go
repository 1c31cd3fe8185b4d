package disk

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/mit-pdos/go-blockfs/util"
)

var _ Disk = (*RemoteDisk)(nil)

// RemoteDisk talks to a block-device server that addresses sectors by
// cylinder and sector number:
//
//	I              -> "<ncyl> <nsec>"
//	R <c> <s>      -> "Yes" + BlockSize raw bytes, or "No"
//	W <c> <s> <n>  -> n raw bytes follow the request; reply "Yes" or "No"
//	E              -> server says goodbye and closes
//
// Requests are synchronous and carry no timeout; a stalled server stalls the
// caller.
type RemoteDisk struct {
	mu   *sync.Mutex // one request in flight
	conn io.ReadWriteCloser
	rd   *bufio.Reader
	wr   *bufio.Writer
	geo  Geometry
}

func DialRemoteDisk(address string) (*RemoteDisk, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	d, err := NewRemoteDisk(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// NewRemoteDisk queries the geometry over conn and takes ownership of it.
func NewRemoteDisk(conn io.ReadWriteCloser) (*RemoteDisk, error) {
	d := &RemoteDisk{
		mu:   new(sync.Mutex),
		conn: conn,
		rd:   bufio.NewReader(conn),
		wr:   bufio.NewWriter(conn),
	}
	line, err := d.request("I\n", nil)
	if err != nil {
		return nil, err
	}
	var geo Geometry
	_, err = fmt.Sscanf(line, "%d %d", &geo.Cylinders, &geo.Sectors)
	if err != nil {
		return nil, fmt.Errorf("bad geometry reply %q: %w", line, err)
	}
	d.geo = geo
	util.DPrintf(1, "remote disk: %d cylinders, %d sectors\n",
		geo.Cylinders, geo.Sectors)
	return d, nil
}

// request sends hdr and payload and returns the reply status line.
func (d *RemoteDisk) request(hdr string, payload []byte) (string, error) {
	_, err := d.wr.WriteString(hdr)
	if err != nil {
		return "", err
	}
	if payload != nil {
		_, err = d.wr.Write(payload)
		if err != nil {
			return "", err
		}
	}
	err = d.wr.Flush()
	if err != nil {
		return "", err
	}
	line, err := d.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (d *RemoteDisk) Read(a uint64) (Block, error) {
	if a >= d.geo.NumBlocks() {
		return nil, fmt.Errorf("out-of-bounds read at %v", a)
	}
	cyl, sec := d.geo.Locate(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	line, err := d.request(fmt.Sprintf("R %d %d\n", cyl, sec), nil)
	if err != nil {
		return nil, err
	}
	if line != "Yes" {
		return nil, fmt.Errorf("read %d (c %d s %d): %s", a, cyl, sec, line)
	}
	buf := make(Block, BlockSize)
	_, err = io.ReadFull(d.rd, buf)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *RemoteDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != BlockSize {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	if a >= d.geo.NumBlocks() {
		return fmt.Errorf("out-of-bounds write at %v", a)
	}
	cyl, sec := d.geo.Locate(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	line, err := d.request(fmt.Sprintf("W %d %d %d\n", cyl, sec, len(v)), v)
	if err != nil {
		return err
	}
	if line != "Yes" {
		return fmt.Errorf("write %d (c %d s %d): %s", a, cyl, sec, line)
	}
	return nil
}

func (d *RemoteDisk) Geometry() (Geometry, error) {
	return d.geo, nil
}

// Barrier is a no-op: the server syncs every write before replying.
func (d *RemoteDisk) Barrier() error { return nil }

func (d *RemoteDisk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.request("E\n", nil)
	if err != nil {
		util.DPrintf(1, "remote disk: close: %v\n", err)
	}
	return d.conn.Close()
}
