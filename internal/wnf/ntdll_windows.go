//go:build windows && (amd64 || arm64)

package wnf

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modntdll = windows.NewLazySystemDLL("ntdll.dll")

	procNtQueryWnfStateData                      = modntdll.NewProc("NtQueryWnfStateData")
	procRtlSubscribeWnfStateChangeNotification   = modntdll.NewProc("RtlSubscribeWnfStateChangeNotification")
	procRtlUnsubscribeWnfStateChangeNotification = modntdll.NewProc("RtlUnsubscribeWnfStateChangeNotification")
)

// windows.NewCallback slots are never freed, so the process shares one
// trampoline and routes by context key.
var (
	trampolineOnce sync.Once
	trampoline     uintptr
)

func callbackTrampoline() uintptr {
	trampolineOnce.Do(func() {
		trampoline = windows.NewCallback(onStateChange)
	})
	return trampoline
}

// onStateChange matches WNF_USER_CALLBACK. The payload is copied before
// returning because the buffer belongs to ntdll.
func onStateChange(stateName, changeStamp, typeID, context, buffer, bufferSize uintptr) uintptr {
	var data []byte
	if buffer != 0 && uint32(bufferSize) != 0 {
		src := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), uint32(bufferSize))
		data = make([]byte, len(src))
		copy(data, src)
	}
	Dispatch(context, Notification{
		StateName:   uint64(stateName),
		ChangeStamp: uint32(changeStamp),
		Data:        data,
	})
	return 0
}

type ntdllPlatform struct{}

// SystemPlatform returns the ntdll-backed platform.
func SystemPlatform() Platform {
	return ntdllPlatform{}
}

func (ntdllPlatform) QueryStateData(stateName uint64, buf []byte) (uint32, uint32, error) {
	var (
		stamp uint32
		size = uint32(len(buf))
		data  uintptr
	)
	if len(buf) > 0 {
		data = uintptr(unsafe.Pointer(&buf[0]))
	}

	status, _, _ := procNtQueryWnfStateData.Call(
		uintptr(unsafe.Pointer(&stateName)),
		0, // type id
		0, // explicit scope
		uintptr(unsafe.Pointer(&stamp)),
		data,
		uintptr(unsafe.Pointer(&size)),
	)
	switch {
	case uint32(status) == StatusBufferTooSmall:
		return stamp, size, ErrBufferTooSmall
	case status != 0:
		return 0, 0, windows.NTStatus(status)
	}
	return stamp, size, nil
}

func (ntdllPlatform) Subscribe(stateName uint64, stamp uint32, key uintptr) (Handle, error) {
	var sub uintptr
	status, _, _ := procRtlSubscribeWnfStateChangeNotification.Call(
		uintptr(unsafe.Pointer(&sub)),
		uintptr(stateName),
		uintptr(stamp),
		callbackTrampoline(),
		key,
		0, // type id
		0, // serialization group
		0,
	)
	if status != 0 {
		return 0, windows.NTStatus(status)
	}
	return Handle(sub), nil
}

func (ntdllPlatform) Unsubscribe(h Handle) error {
	if h == 0 {
		return nil
	}
	status, _, _ := procRtlUnsubscribeWnfStateChangeNotification.Call(uintptr(h))
	if status != 0 {
		return windows.NTStatus(status)
	}
	return nil
}
