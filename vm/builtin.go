package vm

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wippyai/resumable/asm"
	"github.com/wippyai/resumable/classfile"
)

const coreSource = `
(class "core/Object"
  (flags public)
  (method "<init>" "()V" (flags public) (code return))
  (method "hashCode" "()I" (flags public native))
  (method "toString" "()Lcore/String;" (flags public native))
  (method "equals" "(Lcore/Object;)Z" (flags public)
    (code
      aload 0
      aload 1
      if_acmpne $ne
      iconst 1
      ireturn
    $ne:
      iconst 0
      ireturn))
  (method "wait" "()V" (flags public final native))
  (method "wait" "(J)V" (flags public final native))
  (method "wait" "(JI)V" (flags public final native))
  (method "notify" "()V" (flags public final native)))

(class "core/String"
  (flags public final)
  (method "length" "()I" (flags public native))
  (method "concat" "(Lcore/String;)Lcore/String;" (flags public native))
  (method "equals" "(Lcore/Object;)Z" (flags public native))
  (method "hashCode" "()I" (flags public native))
  (method "toString" "()Lcore/String;" (flags public) (code aload 0 areturn))
  (method "valueOf" "(I)Lcore/String;" (flags public static native))
  (method "valueOf" "(J)Lcore/String;" (flags public static native))
  (method "valueOf" "(F)Lcore/String;" (flags public static native))
  (method "valueOf" "(D)Lcore/String;" (flags public static native))
  (method "valueOf" "(Lcore/Object;)Lcore/String;" (flags public static native)))

(class "core/StringBuilder"
  (flags public final)
  (method "<init>" "()V" (flags public native))
  (method "append" "(Lcore/String;)Lcore/StringBuilder;" (flags public native))
  (method "append" "(Lcore/Object;)Lcore/StringBuilder;" (flags public native))
  (method "append" "(I)Lcore/StringBuilder;" (flags public native))
  (method "append" "(J)Lcore/StringBuilder;" (flags public native))
  (method "append" "(F)Lcore/StringBuilder;" (flags public native))
  (method "append" "(D)Lcore/StringBuilder;" (flags public native))
  (method "toString" "()Lcore/String;" (flags public native)))

(class "core/System"
  (flags public final)
  (method "print" "(Lcore/Object;)V" (flags public static native))
  (method "println" "(Lcore/Object;)V" (flags public static native))
  (method "println" "(I)V" (flags public static native))
  (method "println" "(J)V" (flags public static native))
  (method "println" "(F)V" (flags public static native))
  (method "println" "(D)V" (flags public static native)))

(class "core/Throwable"
  (flags public)
  (field "message" "Lcore/String;")
  (field "cause" "Lcore/Throwable;")
  (method "<init>" "()V" (flags public)
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "<init>" "(Lcore/String;)V" (flags public)
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      aload 0
      aload 1
      putfield "core/Throwable" "message" "Lcore/String;"
      return))
  (method "<init>" "(Lcore/String;Lcore/Throwable;)V" (flags public)
    (code
      aload 0
      aload 1
      invokespecial "core/Throwable" "<init>" "(Lcore/String;)V"
      aload 0
      aload 2
      putfield "core/Throwable" "cause" "Lcore/Throwable;"
      return))
  (method "getMessage" "()Lcore/String;" (flags public)
    (code
      aload 0
      getfield "core/Throwable" "message" "Lcore/String;"
      areturn))
  (method "getCause" "()Lcore/Throwable;" (flags public)
    (code
      aload 0
      getfield "core/Throwable" "cause" "Lcore/Throwable;"
      areturn))
  (method "toString" "()Lcore/String;" (flags public native)))

(class "core/Thread"
  (flags public)
  (method "<init>" "()V" (flags public)
    (code
      aload 0
      invokespecial "core/Object" "<init>" "()V"
      return))
  (method "sleep" "(J)V" (flags public static native))
  (method "sleep" "(JI)V" (flags public static native))
  (method "join" "()V" (flags public native))
  (method "join" "(J)V" (flags public native))
  (method "join" "(JI)V" (flags public native)))

(class "core/concurrent/Lock"
  (flags public interface abstract)
  (method "lock" "()V" (flags public abstract))
  (method "lockInterruptibly" "()V" (flags public abstract))
  (method "unlock" "()V" (flags public abstract)))

(class "core/reflect/Method"
  (flags public final)
  (method "lookup" "(Lcore/String;Lcore/String;Lcore/String;)Lcore/reflect/Method;" (flags public static native))
  (method "getName" "()Lcore/String;" (flags public native))
  (method "invoke" "(Lcore/Object;[Lcore/Object;)Lcore/Object;" (flags public native)
    (throws "core/reflect/InvocationTargetException")))

(class "coro/Stack"
  (flags public final)
  (field "SUSPEND" "Lcoro/SuspendExecution;" public static final)
  (method "<clinit>" "()V" (flags static)
    (code
      new "coro/SuspendExecution"
      dup
      invokespecial "coro/SuspendExecution" "<init>" "()V"
      putstatic "coro/Stack" "SUSPEND" "Lcoro/SuspendExecution;"
      return))
  (method "getStack" "()Lcoro/Stack;" (flags public static native))
  (method "nextMethodEntry" "()I" (flags public native))
  (method "pushMethod" "(III)V" (flags public native))
  (method "popMethod" "()V" (flags public native))
  (method "pushInt" "(ILcoro/Stack;I)V" (flags public static native))
  (method "pushLong" "(JLcoro/Stack;I)V" (flags public static native))
  (method "pushFloat" "(FLcoro/Stack;I)V" (flags public static native))
  (method "pushDouble" "(DLcoro/Stack;I)V" (flags public static native))
  (method "pushObject" "(Lcore/Object;Lcoro/Stack;I)V" (flags public static native))
  (method "getInt" "(I)I" (flags public native))
  (method "getLong" "(I)J" (flags public native))
  (method "getFloat" "(I)F" (flags public native))
  (method "getDouble" "(I)D" (flags public native))
  (method "getObject" "(I)Lcore/Object;" (flags public native)))

(class "coro/SuspendableRunnable"
  (flags public interface abstract)
  (method "run" "()V" (flags public abstract) (throws "coro/SuspendExecution")))

(class "coro/Instrumented"
  (flags public interface abstract))

(class "coro/Coroutine"
  (flags public)
  (method "<init>" "(Lcoro/SuspendableRunnable;)V" (flags public native))
  (method "<init>" "(Lcoro/SuspendableRunnable;I)V" (flags public native))
  (method "run" "()V" (flags public native))
  (method "getState" "()Lcore/String;" (flags public native))
  (method "yield" "()V" (flags public static native) (throws "coro/SuspendExecution"))
  (method "reflectInvoke" "(Lcore/reflect/Method;Lcore/Object;[Lcore/Object;)Lcore/Object;" (flags public static native)
    (throws "coro/SuspendExecution" "core/reflect/InvocationTargetException")))
`

// exceptionClasses lists the throwable subclasses synthesized with the
// standard constructors, parents first.
var exceptionClasses = []struct{ name, super string }{
	{"core/Exception", "core/Throwable"},
	{"core/Error", "core/Throwable"},
	{"core/RuntimeException", "core/Exception"},
	{"core/InterruptedException", "core/Exception"},
	{"core/NullPointerException", "core/RuntimeException"},
	{"core/ArithmeticException", "core/RuntimeException"},
	{"core/ClassCastException", "core/RuntimeException"},
	{"core/ArrayIndexOutOfBoundsException", "core/RuntimeException"},
	{"core/NegativeArraySizeException", "core/RuntimeException"},
	{"core/IllegalStateException", "core/RuntimeException"},
	{"core/IllegalArgumentException", "core/RuntimeException"},
	{"core/UnsupportedOperationException", "core/RuntimeException"},
	{"core/StackOverflowError", "core/Error"},
	{"core/reflect/InvocationTargetException", "core/Exception"},
	{"coro/SuspendExecution", "core/Exception"},
}

func exceptionSource(name, super string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(class %q (super %q) (flags public)\n", name, super)
	for _, desc := range []string{"()V", "(Lcore/String;)V", "(Lcore/String;Lcore/Throwable;)V"} {
		md, _ := classfile.ParseMethodDesc(desc)
		fmt.Fprintf(&b, "  (method \"<init>\" %q (flags public) (code aload 0", desc)
		for i := range md.Params {
			fmt.Fprintf(&b, " aload %d", i+1)
		}
		fmt.Fprintf(&b, " invokespecial %q \"<init>\" %q return))\n", super, desc)
	}
	b.WriteString(")\n")
	return b.String()
}

type builtinSet struct {
	classes map[string]*classfile.Class
	encoded map[string][]byte
}

var (
	builtins     *builtinSet
	builtinsOnce sync.Once
)

func loadBuiltins() *builtinSet {
	builtinsOnce.Do(func() {
		src := coreSource
		for _, e := range exceptionClasses {
			src += exceptionSource(e.name, e.super)
		}
		classes, err := asm.AssembleAll(src)
		if err != nil {
			panic(fmt.Sprintf("vm: builtin classes: %v", err))
		}
		set := &builtinSet{
			classes: make(map[string]*classfile.Class, len(classes)),
			encoded: make(map[string][]byte, len(classes)),
		}
		for _, c := range classes {
			data, err := c.Encode()
			if err != nil {
				panic(fmt.Sprintf("vm: encode builtin %s: %v", c.Name, err))
			}
			set.classes[c.Name] = c
			set.encoded[c.Name] = data
		}
		builtins = set
	})
	return builtins
}

// Builtins returns the names of the classes the machine synthesizes.
func Builtins() []string {
	set := loadBuiltins()
	names := make([]string, 0, len(set.classes))
	for name := range set.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
