package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/fs"
)

// cut splits off the first space-separated token of line.
func cut(line string) (string, string) {
	line = strings.TrimLeft(line, " ")
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return line, ""
	}
	return line[:i], line[i+1:]
}

// args splits line into at most n tokens; the last one keeps the rest of
// the line, spaces included.
func args(line string, n int) []string {
	var out []string
	for len(out) < n-1 {
		tok, rest := cut(line)
		if tok == "" {
			return out
		}
		out = append(out, tok)
		line = rest
	}
	if line = strings.TrimLeft(line, " "); line != "" {
		out = append(out, line)
	}
	return out
}

func usage(u string) error {
	return fmt.Errorf("%w: usage: %s", common.ErrInvalidArguments, u)
}

func parseUint(s string, base int, bits int) (uint64, error) {
	n, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", common.ErrInvalidArguments, s)
	}
	return n, nil
}

func parseMode(a []string) (uint32, error) {
	if len(a) < 2 {
		return common.ModeDefault, nil
	}
	m, err := parseUint(a[1], 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(m) & common.ModeMask, nil
}

// payload checks that data holds at least n bytes and returns them.
func payload(n string, data string) ([]byte, error) {
	l, err := parseUint(n, 10, 64)
	if err != nil {
		return nil, err
	}
	if l > uint64(len(data)) {
		return nil, fmt.Errorf("%w: length %d but only %d bytes of data",
			common.ErrInvalidArguments, l, len(data))
	}
	return []byte(data[:l]), nil
}

func yes(data []byte) []byte {
	hdr := fmt.Sprintf("Yes %d\n", len(data))
	return append([]byte(hdr), data...)
}

func no(err error) []byte {
	reason := strings.ReplaceAll(err.Error(), "\n", " ")
	return []byte("No " + reason + "\n")
}

func modeString(m uint32) string {
	bits := []struct {
		bit uint32
		c   byte
	}{
		{common.ModeOwnerR, 'r'},
		{common.ModeOwnerW, 'w'},
		{common.ModeOtherR, 'r'},
		{common.ModeOtherW, 'w'},
		{common.ModeVisible, 'v'},
	}
	b := make([]byte, 0, len(bits))
	for _, x := range bits {
		if m&x.bit != 0 {
			b = append(b, x.c)
		} else {
			b = append(b, '-')
		}
	}
	return string(b)
}

func formatList(ents []dir.Entry) []byte {
	var b strings.Builder
	for _, e := range ents {
		t := '-'
		if e.Kind == common.KindDir {
			t = 'd'
		}
		mtime := time.Unix(int64(e.Mtime), 0).UTC().Format("2006-01-02 15:04")
		fmt.Fprintf(&b, "%c%s\t%d\t%s\t%d\t%s\n", t, modeString(e.Mode), e.Uid,
			mtime, e.Size, e.Name)
	}
	return []byte(b.String())
}

// Exec runs one protocol line on behalf of s and returns the reply. quit
// reports that the client ended its session.
func Exec(fsys *fs.FS, s *fs.Session, line string) ([]byte, bool) {
	line = strings.TrimRight(line, "\r\n")
	cmd, rest := cut(line)
	data, err := dispatch(fsys, s, cmd, rest)
	if err == errQuit {
		return yes([]byte("Bye")), true
	}
	if err != nil {
		return no(err), false
	}
	return yes(data), false
}

var (
	errQuit    = errors.New("quit")
	errUnknown = errors.New("Unknown command")
)

func dispatch(fsys *fs.FS, s *fs.Session, cmd string, rest string) ([]byte, error) {
	switch cmd {
	case "f":
		a := args(rest, 1)
		var ninodes uint64
		if len(a) == 1 {
			n, err := parseUint(a[0], 10, 32)
			if err != nil {
				return nil, err
			}
			ninodes = n
		}
		return nil, fsys.Format(s, ninodes)
	case "mk", "mkdir":
		a := args(rest, 2)
		if len(a) < 1 {
			return nil, usage(cmd + " <name> [mode]")
		}
		mode, err := parseMode(a)
		if err != nil {
			return nil, err
		}
		if cmd == "mk" {
			return nil, fsys.Mk(s, a[0], mode)
		}
		return nil, fsys.Mkdir(s, a[0], mode)
	case "rm", "rmdir":
		a := args(rest, 1)
		if len(a) != 1 {
			return nil, usage(cmd + " <name>")
		}
		if cmd == "rm" {
			return nil, fsys.Rm(s, a[0])
		}
		return nil, fsys.Rmdir(s, a[0])
	case "cd":
		a := args(rest, 1)
		if len(a) != 1 {
			return nil, usage("cd <path>")
		}
		return nil, fsys.Cd(s, a[0])
	case "ls":
		ents, err := fsys.Ls(s)
		if err != nil {
			return nil, err
		}
		return formatList(ents), nil
	case "cat":
		a := args(rest, 1)
		if len(a) != 1 {
			return nil, usage("cat <name>")
		}
		return fsys.Cat(s, a[0])
	case "w":
		a := args(rest, 3)
		if len(a) < 2 {
			return nil, usage("w <name> <len> <data>")
		}
		a = append(a, "")
		data, err := payload(a[1], a[2])
		if err != nil {
			return nil, err
		}
		return nil, fsys.Write(s, a[0], data)
	case "i":
		a := args(rest, 4)
		if len(a) < 3 {
			return nil, usage("i <name> <pos> <len> <data>")
		}
		a = append(a, "")
		pos, err := parseUint(a[1], 10, 64)
		if err != nil {
			return nil, err
		}
		data, err := payload(a[2], a[3])
		if err != nil {
			return nil, err
		}
		return nil, fsys.Insert(s, a[0], pos, data)
	case "d":
		a := args(rest, 3)
		if len(a) != 3 {
			return nil, usage("d <name> <pos> <len>")
		}
		pos, err := parseUint(a[1], 10, 64)
		if err != nil {
			return nil, err
		}
		n, err := parseUint(a[2], 10, 64)
		if err != nil {
			return nil, err
		}
		return nil, fsys.Delete(s, a[0], pos, n)
	case "login":
		a := args(rest, 1)
		if len(a) != 1 {
			return nil, usage("login <uid>")
		}
		uid, err := parseUint(a[0], 10, 64)
		if err != nil {
			return nil, err
		}
		if err := fsys.Login(s, common.Uid(uid)); err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("Hello, uid=%d!", uid)), nil
	case "pwd":
		p, err := fsys.Pwd(s)
		if err != nil {
			return nil, err
		}
		return []byte(p), nil
	case "e":
		if err := fsys.Logout(s); err != nil {
			return nil, err
		}
		return nil, errQuit
	}
	return nil, errUnknown
}
