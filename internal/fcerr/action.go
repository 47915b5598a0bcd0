package fcerr

// Action names the operation a value or statement is going through.
type Action int8

const (
	Unknown Action = iota
	Encrypt
	Decrypt
	Rewrite
	StoreKey
	RotateKey
)

func (a Action) String() string {
	actions := map[Action]string{
		Unknown:   "unknown",
		Encrypt:   "encrypt",
		Decrypt:   "decrypt",
		Rewrite:   "rewrite",
		StoreKey:  "store key",
		RotateKey: "rotate key",
	}

	if str, ok := actions[a]; ok {
		return str
	}
	return "unknown"
}
