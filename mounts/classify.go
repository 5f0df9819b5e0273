package mounts

import (
	"strings"

	"github.com/o0-o/posix/parse"
)

// Type is the storage class of a mount.
type Type string

const (
	// TypeDevice is a filesystem backed by a local block device.
	TypeDevice Type = "device"
	// TypeNetwork is a filesystem served by a remote host.
	TypeNetwork Type = "network"
	// TypeVirtual is a memory backed or kernel provided filesystem.
	TypeVirtual Type = "virtual"
	// TypeOverlay is a view onto other filesystems, including bind mounts.
	TypeOverlay Type = "overlay"
)

type set map[string]struct{}

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, i := range items {
		s[i] = struct{}{}
	}
	return s
}

func (s set) has(item string) bool {
	_, ok := s[item]
	return ok
}

var (
	overlayFS = newSet("overlay", "overlayfs", "aufs", "unionfs", "bindfs", "mergerfs", "nullfs")

	pseudoFS = newSet(
		"proc", "sysfs", "devfs", "devpts", "devtmpfs", "cgroup", "cgroup2",
		"debugfs", "securityfs", "pstore", "bpf", "tracefs", "configfs",
		"fusectl", "mqueue", "hugetlbfs", "binfmt_misc", "efivarfs",
		"selinuxfs", "rpc_pipefs", "nsfs", "fdescfs", "linprocfs", "linsysfs",
	)

	virtualFS = func() set {
		s := newSet("tmpfs", "ramfs", "autofs", "mfs")
		for k := range pseudoFS {
			s[k] = struct{}{}
		}
		return s
	}()

	networkFS = newSet(
		"nfs", "nfs4", "cifs", "smbfs", "smb3", "afs", "ceph", "glusterfs",
		"9p", "sshfs", "davfs", "afpfs", "lustre",
	)

	deviceFS = newSet(
		"ext2", "ext3", "ext4", "xfs", "btrfs", "zfs", "apfs", "hfs",
		"hfsplus", "ufs", "ffs", "jfs", "reiserfs", "vfat", "exfat", "ntfs",
		"ntfs3", "msdos", "iso9660", "udf", "f2fs",
	)

	// FUSE filesystems that do not carry a fuse prefix in their type.
	bareFuseFS = newSet("bindfs", "encfs", "sshfs", "mergerfs", "lxcfs", "cryfs", "gocryptfs")

	deviceSourcePrefixes = []string{"/dev/", "uuid=", "label=", "partuuid=", "partlabel="}
)

// IsFuse returns true if the filesystem type is implemented in userspace.
func IsFuse(fstype string) bool {
	switch {
	case fstype == "fusectl":
		return false
	case strings.HasPrefix(fstype, "fuse"), strings.HasSuffix(fstype, "-fuse"):
		return true
	default:
		return bareFuseFS.has(fstype)
	}
}

// IsPseudo returns true for kernel interface filesystems such as proc.
func IsPseudo(fstype string) bool {
	return pseudoFS.has(strings.TrimPrefix(fstype, "fuse."))
}

// Classify returns the storage class for a filesystem type mounted from
// source. Types missing from the tables are classified by the shape of
// the source. An empty Type means the mount could not be classified.
func Classify(fstype, source string) Type {
	name := strings.TrimPrefix(fstype, "fuse.")
	switch {
	case overlayFS.has(name):
		return TypeOverlay
	case virtualFS.has(name):
		return TypeVirtual
	case networkFS.has(name):
		return TypeNetwork
	case deviceFS.has(name):
		return TypeDevice
	}

	lower := strings.ToLower(source)
	if lower != "/dev/fuse" {
		for _, p := range deviceSourcePrefixes {
			if strings.HasPrefix(lower, p) {
				return TypeDevice
			}
		}
	}
	if strings.Contains(source, ":") || strings.HasPrefix(source, "//") {
		return TypeNetwork
	}
	return ""
}

func parseOptions(opts []string) map[string]any {
	m := make(map[string]any, len(opts))
	for _, o := range opts {
		if k, v, ok := strings.Cut(o, "="); ok {
			m[k] = v
		} else {
			m[o] = true
		}
	}
	return m
}

// NewEntry normalizes one parsed mount record.
func NewEntry(rec parse.MountRecord) *Entry {
	fstype := rec.Type
	opts := rec.Options
	if fstype == "" && len(opts) > 0 {
		// macOS and the BSDs print the type as the first option
		fstype, opts = opts[0], opts[1:]
	}

	e := &Entry{
		MountPoint: rec.MountPoint,
		Fuse:       IsFuse(fstype),
		Options:    parseOptions(opts),
	}

	if fstype == "fuse" || fstype == "fuseblk" {
		if sub, ok := e.Options["subtype"].(string); ok && sub != "" {
			fstype = sub
			delete(e.Options, "subtype")
		} else {
			fstype = ""
		}
	}

	source := rec.Filesystem
	if source == "none" || source == "-" {
		source = ""
	}

	e.Type = Classify(fstype, source)
	if e.Type == TypeDevice && (e.Options["bind"] == true || e.Options["rbind"] == true) {
		e.Type = TypeOverlay
	}
	if e.Type == TypeVirtual {
		pseudo := IsPseudo(fstype)
		e.Pseudo = &pseudo
	}

	e.Filesystem = fstype
	if e.Type != TypeVirtual && source != fstype && source != strings.TrimPrefix(fstype, "fuse.") {
		e.Source = source
	}
	return e
}
