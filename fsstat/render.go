package fsstat

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"onlinstall/util"
)

// Template placeholders:
//
//	%t  fabricated hex type code
//	%T  filesystem type name
//	%n  always empty (legacy placeholder, kept for compatibility)
//	%s  optimal block size
//	%S  fundamental block size
//	%b  total blocks
//	%f  free blocks
//	%a  free blocks available to unprivileged users
//	%c  total inodes
//	%d  free inodes
//
// Substitution is literal string replacement of every occurrence; absent
// fields substitute as the empty string. Placeholders do not collide, so
// replacement order is irrelevant.

// Render substitutes the stat placeholders in template from st.
func Render(st *Stat, template string) string {
	rep := strings.NewReplacer(
		"%t", st.FsTypeCode,
		"%T", st.FsTypeName,
		"%n", "",
		"%s", strconv.FormatInt(st.BlockSizeOptimal, 10),
		"%S", strconv.FormatInt(st.BlockSizeFundamental, 10),
		"%b", renderOpt(st.TotalBlocks),
		"%f", renderOpt(st.FreeBlocks),
		"%a", renderOpt(st.FreeBlocksUnpriv),
		"%c", renderOpt(st.TotalInodes),
		"%d", renderOpt(st.FreeInodes),
	)
	return rep.Replace(template)
}

func renderOpt(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

// Report resolves path, renders template, and writes the result to w.
// A diagnostic naming the matched mount point is always written to errw
// for traceability, success or not. When the rendered template still
// contains percent escapes (stat(1) escapes beyond the set above), final
// formatting is delegated to the stat tool with the matched mount point
// as its target.
func (r *Resolver) Report(path, template string, w, errw io.Writer) error {
	table, err := r.Reader.ReadTable()
	if err != nil {
		fmt.Fprintf(errw, "onlinstall: %v\n", err)
		return err
	}

	rec, err := ResolveMount(path, table)
	if err != nil {
		fmt.Fprintf(errw, "onlinstall: no mount point found for %s\n", path)
		return err
	}
	fmt.Fprintf(errw, "onlinstall: %s is on mount point %s (%s)\n", path, rec.MountPoint, rec.FsType)

	st := r.collectForMount(rec)
	rendered := Render(st, template)

	if strings.Contains(rendered, "%") && util.CommandExists("stat") {
		if out, serr := r.run("stat", "-c", rendered, rec.MountPoint); serr == nil {
			io.WriteString(w, out)
			if !strings.HasSuffix(out, "\n") {
				io.WriteString(w, "\n")
			}
			return nil
		}
		if r.Logger != nil {
			r.Logger.Debug("stat delegation failed for %s, emitting raw render", rec.MountPoint)
		}
	}

	fmt.Fprintln(w, rendered)
	return nil
}
