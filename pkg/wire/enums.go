package wire

import "fmt"

// LogType is the kind of a log record written by a watcher.
type LogType uint8

const (
	LogTypeNormal LogType = iota
	LogTypeInfo
	LogTypeError
	LogTypeDebug
	LogTypeWarning
)

// Log type bit flags as understood by the logger service.
const (
	FlagInfo    uint32 = 0x00000040
	FlagError   uint32 = 0x00000080
	FlagDebug   uint32 = 0x00000100
	FlagWarning uint32 = 0x00000200
	FlagNormal  uint32 = 0x00000400

	// AllLogTypes is the registration mask that selects every log type.
	AllLogTypes uint32 = 0xFFFFFFFF
)

// LogTypes lists every recognized log type.
var LogTypes = []LogType{LogTypeNormal, LogTypeInfo, LogTypeError, LogTypeDebug, LogTypeWarning}

// String returns the log type name.
func (t LogType) String() string {
	switch t {
	case LogTypeNormal:
		return "NORMAL"
	case LogTypeInfo:
		return "INFO"
	case LogTypeError:
		return "ERROR"
	case LogTypeDebug:
		return "DEBUG"
	case LogTypeWarning:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

// Flag returns the service bit flag for the log type, or 0 if unknown.
func (t LogType) Flag() uint32 {
	switch t {
	case LogTypeNormal:
		return FlagNormal
	case LogTypeInfo:
		return FlagInfo
	case LogTypeError:
		return FlagError
	case LogTypeDebug:
		return FlagDebug
	case LogTypeWarning:
		return FlagWarning
	default:
		return 0
	}
}

// IsValid returns true if t is one of the recognized log types.
func (t LogType) IsValid() bool {
	return t.Flag() != 0
}

// ParseLogType parses an upper-case log type name as the logger service
// spells it. Other spellings are rejected; front ends normalize user input.
func ParseLogType(name string) (LogType, error) {
	switch name {
	case "NORMAL":
		return LogTypeNormal, nil
	case "INFO":
		return LogTypeInfo, nil
	case "ERROR":
		return LogTypeError, nil
	case "DEBUG":
		return LogTypeDebug, nil
	case "WARNING":
		return LogTypeWarning, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogType, name)
	}
}

// ComponentType identifies a KBEngine component category.
type ComponentType int32

const (
	ComponentUnknown    ComponentType = 0
	ComponentDBMgr      ComponentType = 1
	ComponentLoginApp   ComponentType = 2
	ComponentBaseAppMgr ComponentType = 3
	ComponentCellAppMgr ComponentType = 4
	ComponentCellApp    ComponentType = 5
	ComponentBaseApp    ComponentType = 6
	ComponentClient     ComponentType = 7
	ComponentMachine    ComponentType = 8
	ComponentConsole    ComponentType = 9
	ComponentLogger     ComponentType = 10
	ComponentBots       ComponentType = 11
	ComponentWatcher    ComponentType = 12
	ComponentInterfaces ComponentType = 13
	ComponentTool       ComponentType = 14

	// ComponentEndType is the number of known component types.
	ComponentEndType = 15
)

// String returns the component type name.
func (c ComponentType) String() string {
	switch c {
	case ComponentUnknown:
		return "UNKNOWN"
	case ComponentDBMgr:
		return "DBMGR"
	case ComponentLoginApp:
		return "LOGINAPP"
	case ComponentBaseAppMgr:
		return "BASEAPPMGR"
	case ComponentCellAppMgr:
		return "CELLAPPMGR"
	case ComponentCellApp:
		return "CELLAPP"
	case ComponentBaseApp:
		return "BASEAPP"
	case ComponentClient:
		return "CLIENT"
	case ComponentMachine:
		return "MACHINE"
	case ComponentConsole:
		return "CONSOLE"
	case ComponentLogger:
		return "LOGGER"
	case ComponentBots:
		return "BOTS"
	case ComponentWatcher:
		return "WATCHER"
	case ComponentInterfaces:
		return "INTERFACES"
	case ComponentTool:
		return "TOOL"
	default:
		return fmt.Sprintf("COMPONENT(%d)", int32(c))
	}
}
