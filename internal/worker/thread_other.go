//go:build !linux

package worker

// threadID はスレッドIDを取得できない環境では0を返す
func threadID() int {
	return 0
}
