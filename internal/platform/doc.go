// Package platform provides sources of "keyboard layout changed" signals.
//
// A Source delivers onEvent callbacks on goroutines it owns; callers must
// not assume any relation between that goroutine and their own. Events
// carry no payload. Consumers that need details re-query the layout.
//
// Implementations:
//   - FileSource watches layout configuration files with fsnotify.
//   - PollSource polls a layout.Reader and fires when the result changes.
//   - ManualSource fires on demand; used by tests and by hosts that learn
//     about changes through their own channels.
//
// Every source shares a single underlying watcher among its subscribers:
// it starts on the first Subscribe and stops when the last subscription
// is released.
package platform
