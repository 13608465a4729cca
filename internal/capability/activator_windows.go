//go:build windows

package capability

import (
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modcombase = windows.NewLazySystemDLL("combase.dll")

	procRoInitialize           = modcombase.NewProc("RoInitialize")
	procRoGetActivationFactory = modcombase.NewProc("RoGetActivationFactory")
	procWindowsCreateString    = modcombase.NewProc("WindowsCreateString")
	procWindowsDeleteString    = modcombase.NewProc("WindowsDeleteString")
)

const (
	roInitMultithreaded = 1

	rpcEChangedMode = 0x80010106
)

// vtable slots. IUnknown takes 0-2 and IInspectable 3-5.
const (
	slotRelease = 2

	// ICapabilityUsageStatics
	slotStaticsCreate = 6

	// ICapabilityUsage: CreateSession, CreatePackagedSession, GetUsage,
	// GetUsageForNonPackagedClient, GetUsageForNonPackagedClients precede it.
	slotGetWNFStateNameForChanges = 11
)

type hresult uint32

func (hr hresult) Error() string {
	return fmt.Sprintf("HRESULT 0x%08X", uint32(hr))
}

func failed(hr uintptr) bool {
	return int32(uint32(hr)) < 0
}

type comActivator struct {
	once    sync.Once
	initErr error
}

var systemActivator = &comActivator{}

// SystemActivator returns the Windows Runtime activator. The multithreaded
// apartment is entered once per process and never left.
func SystemActivator() Activator {
	return systemActivator
}

func (a *comActivator) init() error {
	a.once.Do(func() {
		if err := procRoInitialize.Find(); err != nil {
			a.initErr = err
			return
		}
		hr, _, _ := procRoInitialize.Call(roInitMultithreaded)
		if failed(hr) && uint32(hr) != rpcEChangedMode {
			a.initErr = fmt.Errorf("RoInitialize: %w", hresult(hr))
		}
	})
	return a.initErr
}

func (a *comActivator) ActivationFactory(classID, iid string) (Factory, error) {
	if err := a.init(); err != nil {
		return nil, err
	}

	guid, err := windows.GUIDFromString("{" + iid + "}")
	if err != nil {
		return nil, fmt.Errorf("parse IID %s: %w", iid, err)
	}

	class, err := newHString(classID)
	if err != nil {
		return nil, err
	}
	defer deleteHString(class)

	var factory uintptr
	hr, _, _ := procRoGetActivationFactory.Call(
		class,
		uintptr(unsafe.Pointer(&guid)),
		uintptr(unsafe.Pointer(&factory)),
	)
	if failed(hr) {
		return nil, fmt.Errorf("RoGetActivationFactory(%s): %w", classID, hresult(hr))
	}
	return &comFactory{obj: factory}, nil
}

type comFactory struct {
	obj uintptr
}

func (f *comFactory) Create(capability string) (Usage, error) {
	name, err := newHString(capability)
	if err != nil {
		return nil, err
	}
	defer deleteHString(name)

	var usage uintptr
	hr := vtblCall(f.obj, slotStaticsCreate, name, uintptr(unsafe.Pointer(&usage)))
	if failed(hr) {
		return nil, fmt.Errorf("ICapabilityUsageStatics.Create: %w", hresult(hr))
	}
	return &comUsage{obj: usage}, nil
}

func (f *comFactory) Release() {
	release(&f.obj)
}

type comUsage struct {
	obj uintptr
}

func (u *comUsage) StateName() (uint64, error) {
	var name uint64
	hr := vtblCall(u.obj, slotGetWNFStateNameForChanges, uintptr(unsafe.Pointer(&name)))
	if failed(hr) {
		return 0, fmt.Errorf("ICapabilityUsage.GetWNFStateNameForChanges: %w", hresult(hr))
	}
	return name, nil
}

func (u *comUsage) Release() {
	release(&u.obj)
}

func release(obj *uintptr) {
	if *obj == 0 {
		return
	}
	vtblCall(*obj, slotRelease)
	*obj = 0
}

// vtblCall invokes method slot of the COM object obj.
func vtblCall(obj uintptr, slot int, args ...uintptr) uintptr {
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	fn := *(*uintptr)(unsafe.Pointer(vtbl + uintptr(slot)*unsafe.Sizeof(uintptr(0))))
	hr, _, _ := syscall.SyscallN(fn, append([]uintptr{obj}, args...)...)
	return hr
}

func newHString(s string) (uintptr, error) {
	u16, err := windows.UTF16FromString(s)
	if err != nil {
		return 0, err
	}
	var hs uintptr
	hr, _, _ := procWindowsCreateString.Call(
		uintptr(unsafe.Pointer(&u16[0])),
		uintptr(len(u16)-1),
		uintptr(unsafe.Pointer(&hs)),
	)
	runtime.KeepAlive(u16)
	if failed(hr) {
		return 0, fmt.Errorf("WindowsCreateString: %w", hresult(hr))
	}
	return hs, nil
}

func deleteHString(hs uintptr) {
	if hs != 0 {
		procWindowsDeleteString.Call(hs)
	}
}
