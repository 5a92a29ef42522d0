package worker

import "golang.org/x/sys/unix"

// threadID は呼び出し元のOSスレッドIDを返す
func threadID() int {
	return unix.Gettid()
}
