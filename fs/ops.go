package fs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/util"
)

// lookup resolves name in the working directory of s.
func (fs *FS) lookup(s *Session, name string) (*inode.Inode, *inode.Inode, error) {
	dip, err := fs.cwd(s)
	if err != nil {
		return nil, nil, err
	}
	inum, ok, err := dir.Lookup(fs.itable, dip, name)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", common.ErrNotFound, name)
	}
	ip, err := fs.itable.Get(inum)
	if err != nil {
		return nil, nil, err
	}
	return dip, ip, nil
}

// lookupFile resolves name to a regular file that s holds want on.
func (fs *FS) lookupFile(s *Session, name string, want common.Perm) (*inode.Inode, error) {
	if err := fs.checkReady(s); err != nil {
		return nil, err
	}
	_, ip, err := fs.lookup(s, name)
	if err != nil {
		return nil, err
	}
	if ip.Kind != common.KindFile {
		return nil, fmt.Errorf("%w: %s is not a file", common.ErrWrongType, name)
	}
	if err := checkPermission(s, ip, want); err != nil {
		return nil, err
	}
	return ip, nil
}

func (fs *FS) create(s *Session, kind common.Kind, name string, mode uint32) error {
	if err := fs.checkReady(s); err != nil {
		return err
	}
	dip, err := fs.cwd(s)
	if err != nil {
		return err
	}
	if err := checkPermission(s, dip, common.PermR|common.PermW); err != nil {
		return err
	}
	if !dir.ValidName(name) {
		return fmt.Errorf("%w: %q", common.ErrInvalidName, name)
	}
	_, ok, err := dir.Lookup(fs.itable, dip, name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", common.ErrAlreadyExists, name)
	}
	_, err = dir.Create(fs.itable, kind, name, dip.Inum, s.Uid, mode)
	return err
}

// Mk creates an empty file in the working directory.
func (fs *FS) Mk(s *Session, name string, mode uint32) error {
	return fs.create(s, common.KindFile, name, mode)
}

// Mkdir creates an empty directory in the working directory.
func (fs *FS) Mkdir(s *Session, name string, mode uint32) error {
	return fs.create(s, common.KindDir, name, mode)
}

// release drops one link to ip, freeing it with its blocks at zero.
func (fs *FS) release(ip *inode.Inode) error {
	if ip.Links > 0 {
		ip.Links--
	}
	if ip.Links > 0 {
		return fs.itable.Update(ip)
	}
	if err := fs.itable.Truncate(ip); err != nil {
		return err
	}
	return fs.itable.Free(ip)
}

func (fs *FS) remove(s *Session, kind common.Kind, name string) error {
	if err := fs.checkReady(s); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", common.ErrInvalidName, name)
	}
	dip, ip, err := fs.lookup(s, name)
	if err != nil {
		return err
	}
	if ip.Kind != kind {
		return fmt.Errorf("%w: %s is a %v", common.ErrWrongType, name, ip.Kind)
	}
	want := common.PermW
	if kind == common.KindDir {
		want = common.PermR | common.PermW
	}
	if err := checkPermission(s, ip, want); err != nil {
		return err
	}
	if err := checkPermission(s, dip, common.PermR|common.PermW); err != nil {
		return err
	}
	if kind == common.KindDir {
		empty, err := dir.IsEmpty(fs.itable, ip)
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("%w: %s", common.ErrNotEmpty, name)
		}
	}
	if err := dir.Unlink(fs.itable, dip, ip.Inum); err != nil {
		return err
	}
	return fs.release(ip)
}

// Rm removes a file from the working directory.
func (fs *FS) Rm(s *Session, name string) error {
	return fs.remove(s, common.KindFile, name)
}

// Rmdir removes an empty directory from the working directory.
func (fs *FS) Rmdir(s *Session, name string) error {
	return fs.remove(s, common.KindDir, name)
}

// Cd changes the working directory of s one path segment at a time. A path
// starting with '/' is resolved from the root. If any segment fails the
// working directory is left unchanged.
func (fs *FS) Cd(s *Session, path string) error {
	if err := fs.checkReady(s); err != nil {
		return err
	}
	backup := s.Cwd
	if strings.HasPrefix(path, "/") {
		s.Cwd = common.ROOTINUM
	}
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		if err := fs.cd1(s, name); err != nil {
			s.Cwd = backup
			return err
		}
	}
	return nil
}

func (fs *FS) cd1(s *Session, name string) error {
	_, ip, err := fs.lookup(s, name)
	if err != nil {
		return err
	}
	if err := checkPermission(s, ip, common.PermR); err != nil {
		return err
	}
	if !ip.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", common.ErrWrongType, name)
	}
	s.Cwd = ip.Inum
	return nil
}

// Ls lists the working directory, hiding entries s may not see.
func (fs *FS) Ls(s *Session) ([]dir.Entry, error) {
	if err := fs.checkReady(s); err != nil {
		return nil, err
	}
	dip, err := fs.cwd(s)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(s, dip, common.PermR); err != nil {
		return nil, err
	}
	return dir.List(fs.itable, dip, func(ip *inode.Inode) bool {
		return checkVisible(s, ip)
	})
}

// Cat returns the whole content of a file.
func (fs *FS) Cat(s *Session, name string) ([]byte, error) {
	ip, err := fs.lookupFile(s, name, common.PermR)
	if err != nil {
		return nil, err
	}
	return fs.itable.Read(ip, 0, ip.Size)
}

// Write replaces the content of a file with data.
func (fs *FS) Write(s *Session, name string, data []byte) error {
	ip, err := fs.lookupFile(s, name, common.PermW)
	if err != nil {
		return err
	}
	if _, err := fs.itable.Write(ip, 0, data); err != nil {
		return err
	}
	if uint64(len(data)) < ip.Size {
		ip.Size = uint64(len(data))
		if err := fs.itable.Update(ip); err != nil {
			return err
		}
		return fs.itable.Shrink(ip)
	}
	return nil
}

// Insert puts data into a file at pos, moving what follows pos forward. A
// pos at or past the end appends.
func (fs *FS) Insert(s *Session, name string, pos uint64, data []byte) error {
	ip, err := fs.lookupFile(s, name, common.PermW)
	if err != nil {
		return err
	}
	n := uint64(len(data))
	if util.SumOverflows(ip.Size, n) || ip.Size+n > common.MAXFILESZ {
		return fmt.Errorf("%w: %d bytes", common.ErrFileTooLarge, ip.Size+n)
	}
	if pos >= ip.Size {
		_, err := fs.itable.Write(ip, ip.Size, data)
		return err
	}
	tail, err := fs.itable.Read(ip, pos, ip.Size-pos)
	if err != nil {
		return err
	}
	if _, err := fs.itable.Write(ip, pos, data); err != nil {
		return err
	}
	_, err = fs.itable.Write(ip, pos+n, tail)
	return err
}

// Delete removes n bytes of a file starting at pos. A range reaching the
// end truncates the file at pos.
func (fs *FS) Delete(s *Session, name string, pos uint64, n uint64) error {
	ip, err := fs.lookupFile(s, name, common.PermW)
	if err != nil {
		return err
	}
	if pos > ip.Size {
		return fmt.Errorf("%w: delete at %d of %d-byte file",
			common.ErrOffsetOutOfRange, pos, ip.Size)
	}
	if util.SumOverflows(pos, n) || pos+n >= ip.Size {
		ip.Size = pos
	} else {
		tail, err := fs.itable.Read(ip, pos+n, ip.Size-pos-n)
		if err != nil {
			return err
		}
		if _, err := fs.itable.Write(ip, pos, tail); err != nil {
			return err
		}
		ip.Size -= n
	}
	if err := fs.itable.Update(ip); err != nil {
		return err
	}
	return fs.itable.Shrink(ip)
}

// Pwd returns the absolute path of the working directory, found by following
// ".." entries up to the root.
func (fs *FS) Pwd(s *Session) (string, error) {
	if err := fs.checkReady(s); err != nil {
		return "", err
	}
	ip, err := fs.cwd(s)
	if err != nil {
		return "", err
	}
	var names []string
	for ip.Inum != common.ROOTINUM {
		if uint64(len(names)) >= fs.sb.NInodes {
			return "", fmt.Errorf("%w: cycle above inode %d",
				common.ErrInvalidInode, s.Cwd)
		}
		pinum, err := dir.Parent(fs.itable, ip)
		if err != nil {
			return "", err
		}
		pip, err := fs.itable.Get(pinum)
		if err != nil {
			return "", err
		}
		name, ok, err := dir.NameOf(fs.itable, pip, ip.Inum)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%w: inode %d not in its parent %d",
				common.ErrNotFound, ip.Inum, pinum)
		}
		names = append(names, name)
		ip = pip
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString("/")
		b.WriteString(names[i])
	}
	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}
