package fsarchive

import (
	"github.com/jmgilman/go/archive/errors"
	"github.com/jmgilman/go/archive/internal/validate"
)

// Validator checks entries during extraction. Every check returns a
// CodeSecurity error on rejection.
type Validator interface {
	// ValidatePath checks a member name before anything is written.
	ValidatePath(name string) error

	// ValidateFile checks the properties of a single entry.
	ValidateFile(info FileInfo) error

	// ValidateArchive checks the running totals of the extraction.
	ValidateArchive(stats ArchiveStats) error
}

// FileInfo is the entry metadata seen by validators.
type FileInfo struct {
	// Name is the member name as stored in the archive.
	Name string

	// Size is the uncompressed size in bytes. For entries whose size is
	// only known after reading, it is the number of bytes read so far.
	Size int64

	// Mode is the POSIX mode including file type bits.
	Mode uint32
}

// ArchiveStats are the running totals of an extraction.
type ArchiveStats struct {
	TotalFiles int
	TotalSize  int64
}

func violation(name, format string, args ...interface{}) error {
	return errors.WithContext(errors.Newf(errors.CodeSecurity, format, args...), "entry", name)
}

// SizeValidator limits single files and the archive total. A zero limit is
// disabled.
type SizeValidator struct {
	MaxFileSize  int64
	MaxTotalSize int64
}

func NewSizeValidator(maxFileSize, maxTotalSize int64) *SizeValidator {
	return &SizeValidator{MaxFileSize: maxFileSize, MaxTotalSize: maxTotalSize}
}

func (v *SizeValidator) ValidatePath(string) error {
	return nil
}

func (v *SizeValidator) ValidateFile(info FileInfo) error {
	if v.MaxFileSize > 0 && info.Size > v.MaxFileSize {
		return violation(info.Name, "file size %d exceeds limit %d", info.Size, v.MaxFileSize)
	}
	return nil
}

func (v *SizeValidator) ValidateArchive(stats ArchiveStats) error {
	if v.MaxTotalSize > 0 && stats.TotalSize > v.MaxTotalSize {
		return violation("archive", "total size %d exceeds limit %d", stats.TotalSize, v.MaxTotalSize)
	}
	return nil
}

// FileCountValidator limits the number of extracted entries. Zero disables it.
type FileCountValidator struct {
	MaxFiles int
}

func NewFileCountValidator(maxFiles int) *FileCountValidator {
	return &FileCountValidator{MaxFiles: maxFiles}
}

func (v *FileCountValidator) ValidatePath(string) error {
	return nil
}

func (v *FileCountValidator) ValidateFile(FileInfo) error {
	return nil
}

func (v *FileCountValidator) ValidateArchive(stats ArchiveStats) error {
	if v.MaxFiles > 0 && stats.TotalFiles > v.MaxFiles {
		return violation("archive", "file count %d exceeds limit %d", stats.TotalFiles, v.MaxFiles)
	}
	return nil
}

// PermissionSanitizer rejects setuid and setgid entries and strips the
// bits from modes applied on extraction.
type PermissionSanitizer struct{}

func NewPermissionSanitizer() *PermissionSanitizer {
	return &PermissionSanitizer{}
}

func (v *PermissionSanitizer) ValidatePath(string) error {
	return nil
}

func (v *PermissionSanitizer) ValidateFile(info FileInfo) error {
	if info.Mode&0o4000 != 0 {
		return violation(info.Name, "setuid bit not allowed (mode %o)", info.Mode)
	}
	if info.Mode&0o2000 != 0 {
		return violation(info.Name, "setgid bit not allowed (mode %o)", info.Mode)
	}
	return nil
}

func (v *PermissionSanitizer) ValidateArchive(ArchiveStats) error {
	return nil
}

// SanitizePermissions returns the permission bits of mode without setuid
// and setgid.
func (v *PermissionSanitizer) SanitizePermissions(mode uint32) uint32 {
	return mode & 0o1777
}

// PathTraversalValidator rejects unsafe member names.
type PathTraversalValidator struct {
	paths *validate.PathValidator
}

func NewPathTraversalValidator(allowHidden bool) *PathTraversalValidator {
	return &PathTraversalValidator{paths: &validate.PathValidator{AllowHiddenFiles: allowHidden}}
}

func (v *PathTraversalValidator) ValidatePath(name string) error {
	return errors.WithContext(v.paths.ValidatePath(name), "entry", name)
}

// ValidateSymlink checks that a symlink target stays below the root.
func (v *PathTraversalValidator) ValidateSymlink(link, target string) error {
	return errors.WithContext(v.paths.ValidateSymlink(link, target), "entry", link)
}

func (v *PathTraversalValidator) ValidateFile(FileInfo) error {
	return nil
}

func (v *PathTraversalValidator) ValidateArchive(ArchiveStats) error {
	return nil
}

// ValidatorChain runs validators in order and stops at the first error.
type ValidatorChain struct {
	validators []Validator
}

func NewValidatorChain(validators ...Validator) *ValidatorChain {
	return &ValidatorChain{validators: validators}
}

// AddValidator appends a validator to the chain.
func (vc *ValidatorChain) AddValidator(validator Validator) {
	vc.validators = append(vc.validators, validator)
}

func (vc *ValidatorChain) ValidatePath(name string) error {
	for _, validator := range vc.validators {
		if err := validator.ValidatePath(name); err != nil {
			return err
		}
	}
	return nil
}

func (vc *ValidatorChain) ValidateFile(info FileInfo) error {
	for _, validator := range vc.validators {
		if err := validator.ValidateFile(info); err != nil {
			return err
		}
	}
	return nil
}

func (vc *ValidatorChain) ValidateArchive(stats ArchiveStats) error {
	for _, validator := range vc.validators {
		if err := validator.ValidateArchive(stats); err != nil {
			return errors.WithContextMap(err, map[string]interface{}{
				"files": stats.TotalFiles,
				"size":  stats.TotalSize,
			})
		}
	}
	return nil
}
