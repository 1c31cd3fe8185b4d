package fs

import (
	"fmt"
	"strconv"

	"github.com/mit-pdos/go-blockfs/common"
	"github.com/mit-pdos/go-blockfs/dir"
	"github.com/mit-pdos/go-blockfs/inode"
	"github.com/mit-pdos/go-blockfs/util"
)

// A Session is the identity and working directory commands run with. The
// zero Session is logged out.
type Session struct {
	Uid common.Uid
	Cwd common.Inum
}

func (s *Session) LoggedIn() bool {
	return s.Uid != common.NOUID
}

func (fs *FS) checkReady(s *Session) error {
	if !fs.Formatted() {
		return common.ErrNotFormatted
	}
	if !s.LoggedIn() {
		return common.ErrNotLoggedIn
	}
	return nil
}

// checkPermission requires that s holds every capability in want on ip.
func checkPermission(s *Session, ip *inode.Inode, want common.Perm) error {
	if s.Uid == common.SUPERUID {
		return nil
	}
	var have common.Perm
	if ip.Uid == s.Uid {
		have = common.Perm(ip.Mode >> common.ModeOwnerShift)
	} else {
		have = common.Perm(ip.Mode >> common.ModeOtherShift)
	}
	if have&want != want {
		util.DPrintf(1, "permission denied: uid %d on inode %d mode %#x\n",
			s.Uid, ip.Inum, ip.Mode)
		return fmt.Errorf("%w: inode %d", common.ErrPermissionDenied, ip.Inum)
	}
	return nil
}

func checkVisible(s *Session, ip *inode.Inode) bool {
	return s.Uid == common.SUPERUID || ip.Uid == s.Uid ||
		ip.Mode&common.ModeVisible != 0
}

// cwd loads the working directory of s, moving s back to the root if the
// directory has gone away.
func (fs *FS) cwd(s *Session) (*inode.Inode, error) {
	ip, err := fs.itable.Get(s.Cwd)
	if err == nil && ip.IsDir() {
		return ip, nil
	}
	util.DPrintf(0, "uid %d: cwd %d is gone, back to the root\n", s.Uid, s.Cwd)
	s.Cwd = common.ROOTINUM
	return fs.itable.Get(common.ROOTINUM)
}

// Login makes s act as uid. The remembered working directory of uid is
// restored; a user without one starts in their home directory. On a
// formatted volume /home/<uid> is created if missing.
func (fs *FS) Login(s *Session, uid common.Uid) error {
	if uid == common.NOUID || uid >= common.MAXUID {
		return fmt.Errorf("%w: uid %d", common.ErrInvalidArguments, uid)
	}
	s.Uid = uid
	s.Cwd = common.ROOTINUM
	if !fs.Formatted() {
		return nil
	}
	home, err := fs.ensureHome(uid)
	if err != nil {
		util.DPrintf(0, "Login: no home for uid %d: %v\n", uid, err)
	}
	if rec, ok := fs.sb.FindUser(uid); ok {
		s.Cwd = rec.Cwd
		if _, err := fs.cwd(s); err != nil {
			return err
		}
	} else if err == nil {
		s.Cwd = home
	}
	return fs.Save(s)
}

// Save records the working directory of s in the superblock.
func (fs *FS) Save(s *Session) error {
	if !s.LoggedIn() || !fs.Formatted() {
		return nil
	}
	if !fs.sb.SaveUser(s.Uid, s.Cwd) {
		util.DPrintf(0, "Save: session table full, uid %d not remembered\n",
			s.Uid)
		return nil
	}
	return fs.sb.Store(fs.d)
}

// Logout saves s and clears it.
func (fs *FS) Logout(s *Session) error {
	err := fs.Save(s)
	*s = Session{}
	return err
}

func (fs *FS) ensureDir(parent common.Inum, name string, uid common.Uid) (common.Inum, error) {
	pip, err := fs.itable.Get(parent)
	if err != nil {
		return 0, err
	}
	inum, ok, err := dir.Lookup(fs.itable, pip, name)
	if err != nil {
		return 0, err
	}
	if ok {
		ip, err := fs.itable.Get(inum)
		if err != nil {
			return 0, err
		}
		if !ip.IsDir() {
			return 0, fmt.Errorf("%w: %s is not a directory", common.ErrWrongType,
				name)
		}
		return inum, nil
	}
	ip, err := dir.Create(fs.itable, common.KindDir, name, parent, uid,
		common.ModeDefault)
	if err != nil {
		return 0, err
	}
	return ip.Inum, nil
}

func (fs *FS) ensureHome(uid common.Uid) (common.Inum, error) {
	home, err := fs.ensureDir(common.ROOTINUM, "home", common.SUPERUID)
	if err != nil {
		return 0, err
	}
	return fs.ensureDir(home, strconv.FormatUint(uint64(uid), 10), uid)
}
