package xlator

import "github.com/gluster/glusterfs-sub002/gfid"

// ValueKind tags the dynamic type carried in an Xdata entry (Design Notes
// §9: "Dynamic xdata dictionary... Model as a map keyed by short interned
// strings to a tagged value").
type ValueKind int

const (
	KindBytes ValueKind = iota
	KindInt32
	KindUint32
	KindInt64
	KindUint64
	KindGFID
	KindFD // opaque fd-ref, used by lockinfo/lock-owner blobs
)

// Value is one entry of an Xdata dictionary: exactly one of the typed
// fields is meaningful, selected by Kind.
type Value struct {
	Kind  ValueKind
	Bytes []byte
	I32   int32
	U32   uint32
	I64   int64
	U64   uint64
	GFID  gfid.GFID
}

func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func Int32Value(i int32) Value   { return Value{Kind: KindInt32, I32: i} }
func Uint32Value(u uint32) Value { return Value{Kind: KindUint32, U32: u} }
func Int64Value(i int64) Value   { return Value{Kind: KindInt64, I64: i} }
func Uint64Value(u uint64) Value { return Value{Kind: KindUint64, U64: u} }
func GFIDValue(g gfid.GFID) Value { return Value{Kind: KindGFID, GFID: g} }

// Xdata is the side-channel dictionary carried on every request and
// reply (§4.6). Unknown keys are preserved and forwarded by default; only
// the keys defined in package xattrkeys are interpreted by the storage
// engine. A nil map is a valid, empty Xdata.
type Xdata map[string]Value

// New returns an empty Xdata ready to accumulate entries.
func New() Xdata { return make(Xdata) }

// Has reports whether key is present, the way a translator checks for an
// imperative before acting on it.
func (x Xdata) Has(key string) bool {
	if x == nil {
		return false
	}
	_, ok := x[key]
	return ok
}

// GetBytes returns the raw bytes for key, or nil, false if absent or of
// the wrong kind.
func (x Xdata) GetBytes(key string) ([]byte, bool) {
	if x == nil {
		return nil, false
	}
	v, ok := x[key]
	if !ok || v.Kind != KindBytes {
		return nil, false
	}
	return v.Bytes, true
}

// GetString is a convenience wrapper over GetBytes for callers that store
// string-ish imperatives (such as a preop xattr name).
func (x Xdata) GetString(key string) (string, bool) {
	b, ok := x.GetBytes(key)
	if !ok {
		return "", false
	}
	return string(b), true
}

// Set stores v under key, allocating the map on first use.
func (x *Xdata) Set(key string, v Value) {
	if *x == nil {
		*x = make(Xdata)
	}
	(*x)[key] = v
}

// Clone makes a shallow copy safe for a reply to mutate independently of
// the request that produced it.
func (x Xdata) Clone() Xdata {
	if x == nil {
		return nil
	}
	out := make(Xdata, len(x))
	for k, v := range x {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into x (allocating x if necessary),
// overwriting on key collision. Used when a terminal translator's reply
// xdata is merged into the frame's accumulated reply on the way back up
// the stack.
func (x *Xdata) Merge(other Xdata) {
	for k, v := range other {
		x.Set(k, v)
	}
}
