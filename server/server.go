// Package server exposes a file system over TCP with a line protocol: one
// command per line, and a reply of "Yes <n>\n" followed by n payload bytes,
// or "No <reason>\n".
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/fs"
	"github.com/mit-pdos/go-blockfs/util"
)

// MaxLine bounds a request line: room for a whole file of data plus the
// command and its arguments.
const MaxLine = 2 * int(common.MAXFILESZ)

type Server struct {
	// mu serializes command execution across connections, and guards
	// sessions.
	mu       sync.Mutex
	fs       *fs.FS
	sessions map[uuid.UUID]*fs.Session

	maxLine int // longest request line accepted

	connMu sync.Mutex
	conns  map[uuid.UUID]net.Conn
	wg     sync.WaitGroup
}

func MkServer(fsys *fs.FS) *Server {
	return &Server{
		fs:       fsys,
		maxLine:  MaxLine,
		sessions: make(map[uuid.UUID]*fs.Session),
		conns:    make(map[uuid.UUID]net.Conn),
	}
}

// NumSessions returns the number of connected clients.
func (srv *Server) NumSessions() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// Open registers a new client and returns its id.
func (srv *Server) Open() uuid.UUID {
	id := uuid.New()
	srv.mu.Lock()
	srv.sessions[id] = &fs.Session{}
	srv.mu.Unlock()
	util.DPrintf(1, "session %v: open\n", id)
	return id
}

// Close logs the client out, remembering its working directory.
func (srv *Server) Close(id uuid.UUID) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	s, ok := srv.sessions[id]
	if !ok {
		return
	}
	if err := srv.fs.Logout(s); err != nil {
		util.DPrintf(0, "session %v: logout: %v\n", id, err)
	}
	delete(srv.sessions, id)
	util.DPrintf(1, "session %v: closed\n", id)
}

// Do runs one command line for client id and saves its session afterwards.
func (srv *Server) Do(id uuid.UUID, line string) ([]byte, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	s, ok := srv.sessions[id]
	if !ok {
		return no(errors.New("no such session")), true
	}
	reply, quit := Exec(srv.fs, s, line)
	if err := srv.fs.Save(s); err != nil {
		util.DPrintf(0, "session %v: save: %v\n", id, err)
	}
	util.DPrintf(5, "session %v: %q -> %q\n", id, line, firstLine(reply))
	return reply, quit
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Serve accepts connections on ln until ctx is done, then closes every open
// connection and waits for their handlers.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		ln.Close()
	}()

	defer func() {
		srv.connMu.Lock()
		for _, c := range srv.conns {
			c.Close()
		}
		srv.connMu.Unlock()
		srv.wg.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		id := srv.Open()
		srv.connMu.Lock()
		srv.conns[id] = conn
		srv.connMu.Unlock()
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.handle(id, conn)
		}()
	}
}

func (srv *Server) handle(id uuid.UUID, conn net.Conn) {
	defer func() {
		srv.Close(id)
		srv.connMu.Lock()
		delete(srv.conns, id)
		srv.connMu.Unlock()
		conn.Close()
	}()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), srv.maxLine)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		reply, quit := srv.Do(id, line)
		if _, err := conn.Write(reply); err != nil {
			util.DPrintf(1, "session %v: write: %v\n", id, err)
			return
		}
		if quit {
			return
		}
	}
	if err := sc.Err(); err != nil {
		util.DPrintf(0, "session %v: read: %v\n", id, err)
	}
}
