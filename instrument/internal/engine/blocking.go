package engine

import (
	"slices"

	"github.com/wippyai/resumable/classfile"
)

type blockingMethod struct {
	owner string
	name  string
	descs []string
}

// blockingMethods are calls that park the host thread instead of
// suspending the coroutine.
var blockingMethods = []blockingMethod{
	{"core/Thread", "sleep", []string{"(J)V", "(JI)V"}},
	{"core/Thread", "join", []string{"()V", "(J)V", "(JI)V"}},
	{classfile.ObjectClass, "wait", []string{"()V", "(J)V", "(JI)V"}},
	{"core/concurrent/Lock", "lock", []string{"()V"}},
	{"core/concurrent/Lock", "lockInterruptibly", []string{"()V"}},
}

// blockingCall returns the index of the table entry imm matches, or -1.
func blockingCall(imm classfile.MemberImm) int {
	for i, b := range blockingMethods {
		if b.owner == imm.Owner && b.name == imm.Name && slices.Contains(b.descs, imm.Desc) {
			return i
		}
	}
	return -1
}
