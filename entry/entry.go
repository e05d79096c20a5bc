package entry

import (
	"io/fs"
	"time"
)

// File type bits, as stored in the high bits of a POSIX st_mode.
const (
	TypeMask uint32 = 0o170000
	TypeReg  uint32 = 0o100000
	TypeDir  uint32 = 0o040000
	TypeLink uint32 = 0o120000
	TypeChr  uint32 = 0o020000
	TypeBlk  uint32 = 0o060000
	TypeFIFO uint32 = 0o010000
	TypeSock uint32 = 0o140000
)

// Entry holds the metadata of a single archive member.
type Entry struct {
	pathname string
	hardlink string
	symlink  string

	size    int64
	sizeSet bool

	mode uint32

	uid, gid     int64
	uname, gname string

	mtime, atime, ctime, birthtime             time.Time
	mtimeSet, atimeSet, ctimeSet, birthtimeSet bool

	devMajor, devMinor   uint32
	rdevMajor, rdevMinor uint32
	ino                  uint64
	nlink                uint32
	fflags               string

	encrypted bool
}

// New returns an empty entry.
func New() *Entry {
	return &Entry{}
}

// Clear resets every property.
func (e *Entry) Clear() {
	*e = Entry{}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

func (e *Entry) Pathname() string {
	return e.pathname
}

func (e *Entry) SetPathname(name string) {
	e.pathname = name
}

// Hardlink returns the target of a hard link, or "".
func (e *Entry) Hardlink() string {
	return e.hardlink
}

func (e *Entry) SetHardlink(target string) {
	e.hardlink = target
}

// Symlink returns the target of a symbolic link, or "".
func (e *Entry) Symlink() string {
	return e.symlink
}

// SetSymlink records the link target. A non-empty target also sets the
// file type to symlink.
func (e *Entry) SetSymlink(target string) {
	e.symlink = target
	if target != "" {
		e.SetFiletype(TypeLink)
	}
}

// Size returns the size of the member data. It is 0 when unset.
func (e *Entry) Size() int64 {
	return e.size
}

// HasSize reports whether the size is known.
func (e *Entry) HasSize() bool {
	return e.sizeSet
}

func (e *Entry) SetSize(size int64) {
	e.size = size
	e.sizeSet = true
}

// UnsetSize marks the size as unknown.
func (e *Entry) UnsetSize() {
	e.size = 0
	e.sizeSet = false
}

// Mode returns the full POSIX mode including the file type bits.
func (e *Entry) Mode() uint32 {
	return e.mode
}

func (e *Entry) SetMode(m uint32) {
	e.mode = m
}

// Perm returns the permission bits of the mode.
func (e *Entry) Perm() uint32 {
	return e.mode &^ TypeMask
}

// SetPerm replaces the permission bits and keeps the file type.
func (e *Entry) SetPerm(p uint32) {
	e.mode = e.mode&TypeMask | p&^TypeMask
}

// Filetype returns the file type bits of the mode.
func (e *Entry) Filetype() uint32 {
	return e.mode & TypeMask
}

// SetFiletype replaces the file type bits and keeps the permissions.
func (e *Entry) SetFiletype(t uint32) {
	e.mode = e.mode&^TypeMask | t&TypeMask
}

func (e *Entry) IsDir() bool {
	return e.Filetype() == TypeDir
}

func (e *Entry) IsRegular() bool {
	return e.Filetype() == TypeReg
}

func (e *Entry) IsSymlink() bool {
	return e.Filetype() == TypeLink
}

func (e *Entry) UID() int64 {
	return e.uid
}

func (e *Entry) SetUID(uid int64) {
	e.uid = uid
}

func (e *Entry) GID() int64 {
	return e.gid
}

func (e *Entry) SetGID(gid int64) {
	e.gid = gid
}

func (e *Entry) Uname() string {
	return e.uname
}

func (e *Entry) SetUname(n string) {
	e.uname = n
}

func (e *Entry) Gname() string {
	return e.gname
}

func (e *Entry) SetGname(n string) {
	e.gname = n
}

func (e *Entry) Mtime() time.Time {
	return e.mtime
}

func (e *Entry) HasMtime() bool {
	return e.mtimeSet
}

func (e *Entry) SetMtime(t time.Time) {
	e.mtime, e.mtimeSet = t, true
}

func (e *Entry) UnsetMtime() {
	e.mtime, e.mtimeSet = time.Time{}, false
}

func (e *Entry) Atime() time.Time {
	return e.atime
}

func (e *Entry) HasAtime() bool {
	return e.atimeSet
}

func (e *Entry) SetAtime(t time.Time) {
	e.atime, e.atimeSet = t, true
}

func (e *Entry) Ctime() time.Time {
	return e.ctime
}

func (e *Entry) HasCtime() bool {
	return e.ctimeSet
}

func (e *Entry) SetCtime(t time.Time) {
	e.ctime, e.ctimeSet = t, true
}

func (e *Entry) Birthtime() time.Time {
	return e.birthtime
}

func (e *Entry) HasBirthtime() bool {
	return e.birthtimeSet
}

func (e *Entry) SetBirthtime(t time.Time) {
	e.birthtime, e.birthtimeSet = t, true
}

// Dev returns the device holding the file.
func (e *Entry) Dev() (major, minor uint32) {
	return e.devMajor, e.devMinor
}

func (e *Entry) SetDev(major, minor uint32) {
	e.devMajor, e.devMinor = major, minor
}

// Rdev returns the device number of a character or block special file.
func (e *Entry) Rdev() (major, minor uint32) {
	return e.rdevMajor, e.rdevMinor
}

func (e *Entry) SetRdev(major, minor uint32) {
	e.rdevMajor, e.rdevMinor = major, minor
}

func (e *Entry) Ino() uint64 {
	return e.ino
}

func (e *Entry) SetIno(ino uint64) {
	e.ino = ino
}

func (e *Entry) Nlink() uint32 {
	return e.nlink
}

func (e *Entry) SetNlink(n uint32) {
	e.nlink = n
}

// Fflags returns the file flags in their textual form, e.g. "uchg,nodump".
func (e *Entry) Fflags() string {
	return e.fflags
}

func (e *Entry) SetFflags(s string) {
	e.fflags = s
}

// Encrypted reports whether the member data is encrypted.
func (e *Entry) Encrypted() bool {
	return e.encrypted
}

func (e *Entry) SetEncrypted(v bool) {
	e.encrypted = v
}

// FileMode converts the POSIX mode to an fs.FileMode.
func (e *Entry) FileMode() fs.FileMode {
	m := fs.FileMode(e.Perm() & 0o777)
	if e.mode&0o4000 != 0 {
		m |= fs.ModeSetuid
	}
	if e.mode&0o2000 != 0 {
		m |= fs.ModeSetgid
	}
	if e.mode&0o1000 != 0 {
		m |= fs.ModeSticky
	}
	switch e.Filetype() {
	case TypeDir:
		m |= fs.ModeDir
	case TypeLink:
		m |= fs.ModeSymlink
	case TypeChr:
		m |= fs.ModeDevice | fs.ModeCharDevice
	case TypeBlk:
		m |= fs.ModeDevice
	case TypeFIFO:
		m |= fs.ModeNamedPipe
	case TypeSock:
		m |= fs.ModeSocket
	}
	return m
}

// ModeFromFileMode converts an fs.FileMode to a POSIX mode.
func ModeFromFileMode(fm fs.FileMode) uint32 {
	m := uint32(fm.Perm())
	if fm&fs.ModeSetuid != 0 {
		m |= 0o4000
	}
	if fm&fs.ModeSetgid != 0 {
		m |= 0o2000
	}
	if fm&fs.ModeSticky != 0 {
		m |= 0o1000
	}
	switch {
	case fm.IsDir():
		m |= TypeDir
	case fm&fs.ModeSymlink != 0:
		m |= TypeLink
	case fm&fs.ModeCharDevice != 0:
		m |= TypeChr
	case fm&fs.ModeDevice != 0:
		m |= TypeBlk
	case fm&fs.ModeNamedPipe != 0:
		m |= TypeFIFO
	case fm&fs.ModeSocket != 0:
		m |= TypeSock
	default:
		m |= TypeReg
	}
	return m
}

// FromFileInfo fills a new entry from file info. The pathname is name.
func FromFileInfo(name string, info fs.FileInfo) *Entry {
	e := New()
	e.SetPathname(name)
	e.SetMode(ModeFromFileMode(info.Mode()))
	e.SetMtime(info.ModTime())
	if info.Mode().IsRegular() {
		e.SetSize(info.Size())
	} else {
		e.SetSize(0)
	}
	return e
}
