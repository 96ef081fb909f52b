package effect

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// dumpRetryInterval is the pause between lock attempts in Dump.
const dumpRetryInterval = 100 * time.Millisecond

// Dump writes a human-readable report of every instance to w.
//
// Dump is a diagnostic path and must never hang: it retries the registry
// lock until the dump timeout expires. If the lock stays busy it writes a
// warning and the lock-free instance count, and returns ErrLockBusy. The map
// is never read without the lock.
func (r *Registry) Dump(w io.Writer) error {
	locked := r.dumpTryLock()
	if !locked {
		fmt.Fprintf(w, "device effect registry may be busy or deadlocked (%d instances)\n", r.count.Load())
	}

	fmt.Fprint(w, "\nDevice Effects:\n")
	if !locked {
		return ErrLockBusy
	}

	insts := r.instancesLocked()
	r.mu.Unlock()

	for _, inst := range insts {
		fmt.Fprintf(w, "%*sEffect for device %s address %s:\n", 2, "", inst.key.Type, inst.key.Address)
		inst.dump(w, 4)
	}
	return nil
}

func (r *Registry) dumpTryLock() bool {
	deadline := time.Now().Add(r.dumpTimeout)
	for {
		if r.mu.TryLock() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(min(dumpRetryInterval, time.Until(deadline)))
	}
}

// dump writes the instance details indented by spaces. A busy instance is
// reported as such rather than waited for.
func (i *Instance) dump(w io.Writer, spaces int) {
	pad := strings.Repeat(" ", spaces)

	if !i.mu.TryLock() {
		fmt.Fprintf(w, "%sEffect %d: instance busy\n", pad, i.id)
		return
	}
	info := i.infoLocked()
	i.mu.Unlock()

	fmt.Fprintf(w, "%sEffect ID %d:\n", pad, info.ID)
	fmt.Fprintf(w, "%s  Name: %s\n", pad, info.Descriptor.Name)
	fmt.Fprintf(w, "%s  UUID: %s\n", pad, info.Descriptor.UUID)
	fmt.Fprintf(w, "%s  Type: %s (%s)\n", pad, info.Descriptor.Type, ClassificationName(info.Descriptor.Flags))
	fmt.Fprintf(w, "%s  Enabled: %t  Pinned: %t\n", pad, info.Enabled, info.Pinned)

	patches := make([]string, 0, len(info.Patches))
	for _, id := range info.Patches {
		patches = append(patches, fmt.Sprint(id))
	}
	fmt.Fprintf(w, "%s  Patches: [%s]\n", pad, strings.Join(patches, ", "))

	fmt.Fprintf(w, "%s  %d Clients:\n", pad, len(info.Handles))
	if len(info.Handles) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s    Handle\tClient\tPID\tUID\tEnabled\n", pad)
	for _, h := range info.Handles {
		fmt.Fprintf(tw, "%s    %s\t%s\t%d\t%d\t%t\n", pad, h.ID, h.Client.ID, h.Client.PID, h.Client.UID, h.Enabled)
	}
	tw.Flush()
}
