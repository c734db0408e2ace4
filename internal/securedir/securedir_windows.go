//go:build windows

package securedir

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mkdirRestricted creates dir with an owner-and-administrators-only security
// descriptor applied in the CreateDirectory call itself, so the directory
// never exists with inherited, wider access.
func mkdirRestricted(dir string) error {
	sd, err := restrictedDescriptor()
	if err != nil {
		return err
	}
	sa := &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
	}
	p, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return err
	}
	if err := windows.CreateDirectory(p, sa); err != nil {
		if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			return os.ErrExist
		}
		return &os.PathError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// verifyOwnerOnly re-applies the protected DACL to a directory that already
// existed. A directory owned by a different principal that denies the write
// is logged and tolerated for ancestors; the leaf must be securable.
func verifyOwnerOnly(dir string, isLeaf bool, logger *slog.Logger) error {
	sd, err := restrictedDescriptor()
	if err != nil {
		return err
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("extract dacl: %w", err)
	}
	err = windows.SetNamedSecurityInfo(
		dir,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	)
	if err != nil {
		if isLeaf {
			return &SecurityError{Path: dir, Err: err}
		}
		logger.Warn("could not apply directory security descriptor", "path", dir, "err", err)
	}
	return nil
}

// restrictedDescriptor builds a protected DACL (no inheritance) granting full
// control to the current user, SYSTEM, and Administrators only.
func restrictedDescriptor() (*windows.SECURITY_DESCRIPTOR, error) {
	token := windows.GetCurrentProcessToken()
	user, err := token.GetTokenUser()
	if err != nil {
		return nil, fmt.Errorf("query current user sid: %w", err)
	}
	sddl := fmt.Sprintf(
		"D:P(A;OICI;FA;;;%s)(A;OICI;FA;;;SY)(A;OICI;FA;;;BA)",
		user.User.Sid.String(),
	)
	sd, err := windows.SecurityDescriptorFromString(sddl)
	if err != nil {
		return nil, fmt.Errorf("build security descriptor: %w", err)
	}
	return sd, nil
}
