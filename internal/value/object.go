package value

// ObjType discriminates heap object variants.
type ObjType int

const (
	// ObjTypeString marks a StringObject.
	ObjTypeString ObjType = iota
)

// Obj is the common header every heap object carries: a type tag and a
// Next link forming the intrusive singly linked list rooted at the VM's
// Heap, so the whole heap can be walked and reclaimed in one pass at VM
// teardown.
type Obj struct {
	Type ObjType
	Next *Obj
	Str  *StringObject
}

// StringObject is an immutable, interned string. Hash is computed once
// at construction via FNV-1a.
type StringObject struct {
	Chars string
	Hash  uint32
}

// fnvOffsetBasis and fnvPrime are the standard FNV-1a seed and prime.
const (
	fnvOffsetBasis uint32 = 2166136261
	fnvPrime       uint32 = 16777619
)

// HashString computes the FNV-1a hash of s.
func HashString(s string) uint32 {
	hash := fnvOffsetBasis
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= fnvPrime
	}
	return hash
}

// Heap is the VM-owned object list. It is the sole allocator of heap
// objects; Values hold non-owning handles into it. Go's garbage
// collector reclaims the underlying memory, but the intrusive list is
// still maintained and walked on Free so the bulk-reclamation shape
// matches the reference design rather than relying on GC behavior.
type Heap struct {
	head  *Obj
	count int
}

// AllocateString wraps chars in a new StringObject, links it into the
// heap list, and returns the handle. It does not check for an existing
// interned copy; that is the caller's (the VM's) job via its strings
// table.
func (h *Heap) AllocateString(chars string) *Obj {
	obj := &Obj{
		Type: ObjTypeString,
		Str:  &StringObject{Chars: chars, Hash: HashString(chars)},
	}
	obj.Next = h.head
	h.head = obj
	h.count++
	return obj
}

// Count returns the number of live objects on the heap.
func (h *Heap) Count() int {
	return h.count
}

// Walk invokes fn for every object on the heap, head first.
func (h *Heap) Walk(fn func(*Obj)) {
	for o := h.head; o != nil; o = o.Next {
		fn(o)
	}
}

// Free walks and releases the entire object list. Every heap object
// becomes unreachable in one pass, matching the reference VM's bulk
// free-on-shutdown discipline.
func (h *Heap) Free() {
	for o := h.head; o != nil; {
		next := o.Next
		o.Next = nil
		o = next
	}
	h.head = nil
	h.count = 0
}
