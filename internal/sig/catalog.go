package sig

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"kiln/internal/types"
)

// helperSig enumerates the fixed-shape helper signatures the catalog serves.
// Parameterized families (multi-dimensional allocation by rank, vector math
// by lane shape) sit outside this enum and are memoized separately.
type helperSig int

const (
	sigNewInstance helperSig = iota
	sigNewArray
	sigNewArrayNoZero
	sigMultiNewArray2
	sigMultiNewArray3
	sigMultiNewArray4
	sigMultiNewArray5
	sigMultiNewArrayN
	sigCompleteMonitorEnter
	sigCompleteMonitorExit
	sigMonitorNotify
	sigFastArrayCopy
	sigCheckcastArrayCopy
	sigGenericArrayCopy
	sigSlowArrayCopy
	sigArrayFill
	sigArraySort
	sigArrayPartition
	sigSetMemory
	sigAESCryptBlock
	sigCipherBlockChaining
	sigElectronicCodeBook
	sigCounterMode
	sigGaloisCounterMode
	sigDigestCompress
	sigDigestCompressWide
	sigDigestCompressMB
	sigDigestCompressMBWide
	sigMultiplyToLen
	sigSquareToLen
	sigMulAdd
	sigMontgomeryMultiply
	sigMontgomerySquare
	sigBigIntegerShift
	sigVectorizedMismatch
	sigGHASHProcessBlocks
	sigChaCha20Block
	sigPoly1305ProcessBlocks
	sigBase64EncodeBlock
	sigBase64DecodeBlock
	sigStringIndexOf
	sigUpdateBytesCRC32
	sigUpdateBytesCRC32C
	sigUpdateBytesAdler32
	sigMathDD
	sigMathDDD
	sigModF
	sigL2F
	sigThrow
	sigRethrow
	sigUncommonTrap
	sigOSREnd
	sigRegisterFinalizer
	sigNotifyVThread
	sigVoidVoid
	sigVoidLong

	numHelperSigs
)

// Catalog hands out the memoized call signature for every runtime helper the
// backend can emit a call to. Each fixed entry is built exactly once, on
// first request, under a per-entry guard; every later request returns the
// pointer-identical *Signature, so identity comparison is a valid equality
// check for catalog signatures.
type Catalog struct {
	in      *types.Interner
	entries [numHelperSigs]catalogEntry

	vecs sync.Map // vectorKey -> *Signature
}

type catalogEntry struct {
	once sync.Once
	sig  *Signature
}

type vectorKey struct {
	numArgs int
	in, out types.TypeID
}

// NewCatalog builds an empty catalog over the given interner. Entries are
// populated lazily.
func NewCatalog(in *types.Interner) *Catalog {
	return &Catalog{in: in}
}

// Types returns the interner the catalog allocates descriptors from.
func (c *Catalog) Types() *types.Interner { return c.in }

func (c *Catalog) get(h helperSig) *Signature {
	e := &c.entries[h]
	e.once.Do(func() {
		e.sig = sigBuilders[h](c)
	})
	return e.sig
}

func (c *Catalog) make(name string, domain, results []types.TypeID) *Signature {
	return newSignature(name, domain, results)
}

// sigBuilders is the data-driven construction table: one builder per fixed
// entry. Adding a helper means adding an enum constant and one row here.
var sigBuilders = [numHelperSigs]func(*Catalog) *Signature{
	sigNewInstance: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("new_instance",
			[]types.TypeID{b.Klass},
			[]types.TypeID{b.Oop})
	},
	sigNewArray: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("new_array",
			[]types.TypeID{b.Klass, b.Int},
			[]types.TypeID{b.Oop})
	},
	sigNewArrayNoZero: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("new_array_nozero",
			[]types.TypeID{b.Klass, b.Int},
			[]types.TypeID{b.Oop})
	},
	sigMultiNewArray2: func(c *Catalog) *Signature { return c.multiNewArraySig(2) },
	sigMultiNewArray3: func(c *Catalog) *Signature { return c.multiNewArraySig(3) },
	sigMultiNewArray4: func(c *Catalog) *Signature { return c.multiNewArraySig(4) },
	sigMultiNewArray5: func(c *Catalog) *Signature { return c.multiNewArraySig(5) },
	sigMultiNewArrayN: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		// Rank and dimension sizes travel in an int array object.
		return c.make("multianewarrayN",
			[]types.TypeID{b.Klass, b.Oop},
			[]types.TypeID{b.Oop})
	},
	sigCompleteMonitorEnter: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("complete_monitor_enter",
			[]types.TypeID{b.Oop, b.RawAddress},
			nil)
	},
	sigCompleteMonitorExit: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("complete_monitor_exit",
			[]types.TypeID{b.Oop, b.RawAddress},
			nil)
	},
	sigMonitorNotify: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("monitor_notify",
			[]types.TypeID{b.Oop},
			nil)
	},
	sigFastArrayCopy: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("fast_arraycopy",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Long},
			nil)
	},
	sigCheckcastArrayCopy: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("checkcast_arraycopy",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Long, b.Klass},
			[]types.TypeID{b.Int})
	},
	sigGenericArrayCopy: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("generic_arraycopy",
			[]types.TypeID{b.Oop, b.Int, b.Oop, b.Int, b.Int},
			[]types.TypeID{b.Int})
	},
	sigSlowArrayCopy: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("slow_arraycopy",
			[]types.TypeID{b.Oop, b.Int, b.Oop, b.Int, b.Int},
			nil)
	},
	sigArrayFill: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("array_fill",
			[]types.TypeID{b.RawAddress, b.Int, b.Int},
			nil)
	},
	sigArraySort: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("array_sort",
			[]types.TypeID{b.RawAddress, b.Int, b.Int, b.Int},
			nil)
	},
	sigArrayPartition: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("array_partition",
			[]types.TypeID{b.RawAddress, b.Int, b.Int, b.Int, b.RawAddress, b.Int, b.Int},
			nil)
	},
	sigSetMemory: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("set_memory",
			[]types.TypeID{b.RawAddress, b.Long, b.Int},
			nil)
	},
	sigAESCryptBlock: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("aescrypt_block",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress},
			nil)
	},
	sigCipherBlockChaining: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("cipher_block_chaining",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigElectronicCodeBook: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("electronic_codebook",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigCounterMode: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("counter_mode",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress, b.RawAddress, b.Int, b.RawAddress},
			[]types.TypeID{b.Int})
	},
	sigGaloisCounterMode: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("galois_counter_mode",
			[]types.TypeID{b.RawAddress, b.Int, b.RawAddress, b.RawAddress, b.RawAddress, b.RawAddress, b.RawAddress},
			[]types.TypeID{b.Int})
	},
	sigDigestCompress: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("digest_compress",
			[]types.TypeID{b.RawAddress, b.RawAddress},
			nil)
	},
	sigDigestCompressWide: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		// Wide digests (SHA3) carry the block size explicitly.
		return c.make("digest_compress_wide",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int},
			nil)
	},
	sigDigestCompressMB: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("digest_compress_mb",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int, b.Int},
			[]types.TypeID{b.Int})
	},
	sigDigestCompressMBWide: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("digest_compress_mb_wide",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int, b.Int, b.Int},
			[]types.TypeID{b.Int})
	},
	sigMultiplyToLen: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("multiply_to_len",
			[]types.TypeID{b.RawAddress, b.Int, b.RawAddress, b.Int, b.RawAddress, b.Int},
			nil)
	},
	sigSquareToLen: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("square_to_len",
			[]types.TypeID{b.RawAddress, b.Int, b.RawAddress, b.Int},
			nil)
	},
	sigMulAdd: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("mul_add",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int, b.Int, b.Int},
			[]types.TypeID{b.Int})
	},
	sigMontgomeryMultiply: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("montgomery_multiply",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress, b.Int, b.Long, b.RawAddress},
			nil)
	},
	sigMontgomerySquare: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("montgomery_square",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int, b.Long, b.RawAddress},
			nil)
	},
	sigBigIntegerShift: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("big_integer_shift",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Int, b.Int, b.Int},
			nil)
	},
	sigVectorizedMismatch: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("vectorized_mismatch",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.Long, b.Int},
			[]types.TypeID{b.Int})
	},
	sigGHASHProcessBlocks: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("ghash_process_blocks",
			[]types.TypeID{b.RawAddress, b.RawAddress, b.RawAddress, b.Int},
			nil)
	},
	sigChaCha20Block: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("chacha20_block",
			[]types.TypeID{b.RawAddress, b.RawAddress},
			[]types.TypeID{b.Int})
	},
	sigPoly1305ProcessBlocks: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("poly1305_process_blocks",
			[]types.TypeID{b.RawAddress, b.Long, b.RawAddress, b.RawAddress},
			nil)
	},
	sigBase64EncodeBlock: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("base64_encode_block",
			[]types.TypeID{b.RawAddress, b.Int, b.Int, b.RawAddress, b.Int, b.Int},
			nil)
	},
	sigBase64DecodeBlock: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("base64_decode_block",
			[]types.TypeID{b.RawAddress, b.Int, b.Int, b.RawAddress, b.Int, b.Int, b.Int},
			[]types.TypeID{b.Int})
	},
	sigStringIndexOf: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("string_index_of",
			[]types.TypeID{b.RawAddress, b.Int, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigUpdateBytesCRC32: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("update_bytes_crc32",
			[]types.TypeID{b.Int, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigUpdateBytesCRC32C: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("update_bytes_crc32c",
			[]types.TypeID{b.Int, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigUpdateBytesAdler32: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("update_bytes_adler32",
			[]types.TypeID{b.Int, b.RawAddress, b.Int},
			[]types.TypeID{b.Int})
	},
	sigMathDD: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("math_d_d",
			[]types.TypeID{b.Double},
			[]types.TypeID{b.Double})
	},
	sigMathDDD: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("math_dd_d",
			[]types.TypeID{b.Double, b.Double},
			[]types.TypeID{b.Double})
	},
	sigModF: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		// Fractional and integral parts come back as two full results.
		return c.make("modf",
			[]types.TypeID{b.Double},
			[]types.TypeID{b.Double, b.Double})
	},
	sigL2F: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("l2f",
			[]types.TypeID{b.Long},
			[]types.TypeID{b.Float})
	},
	sigThrow: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("athrow",
			[]types.TypeID{b.Oop},
			nil)
	},
	sigRethrow: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		// The saved return address rides through unchanged so the dispatcher
		// can pick the handler of the frame being rethrown into.
		return c.make("rethrow",
			[]types.TypeID{b.Oop, b.RetAddress},
			[]types.TypeID{b.Oop, b.RetAddress})
	},
	sigUncommonTrap: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("uncommon_trap",
			[]types.TypeID{b.Int},
			nil)
	},
	sigOSREnd: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("osr_end",
			[]types.TypeID{b.RawAddress},
			nil)
	},
	sigRegisterFinalizer: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("register_finalizer",
			[]types.TypeID{b.Oop},
			nil)
	},
	sigNotifyVThread: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("notify_vthread",
			[]types.TypeID{b.Oop, b.Int},
			nil)
	},
	sigVoidVoid: func(c *Catalog) *Signature {
		return c.make("void_void", nil, nil)
	},
	sigVoidLong: func(c *Catalog) *Signature {
		b := c.in.Builtins()
		return c.make("void_long",
			nil,
			[]types.TypeID{b.Long})
	},
}

func (c *Catalog) multiNewArraySig(ndim int) *Signature {
	b := c.in.Builtins()
	domain := make([]types.TypeID, 0, ndim+1)
	domain = append(domain, b.Klass)
	for i := 0; i < ndim; i++ {
		domain = append(domain, b.Int)
	}
	return c.make(fmt.Sprintf("multianewarray%d", ndim), domain, []types.TypeID{b.Oop})
}

// NewInstance is (klass) -> (oop).
func (c *Catalog) NewInstance() *Signature { return c.get(sigNewInstance) }

// NewArray is (klass, length) -> (oop).
func (c *Catalog) NewArray() *Signature { return c.get(sigNewArray) }

// NewArrayNoZero is NewArray without element zeroing.
func (c *Catalog) NewArrayNoZero() *Signature { return c.get(sigNewArrayNoZero) }

// MultiNewArray is (klass, len_1..len_ndim) -> (oop) for ndim in [2,5].
// Requests outside that band panic: the backend lowers higher ranks through
// MultiNewArrayN instead.
func (c *Catalog) MultiNewArray(ndim int) *Signature {
	switch ndim {
	case 2:
		return c.get(sigMultiNewArray2)
	case 3:
		return c.get(sigMultiNewArray3)
	case 4:
		return c.get(sigMultiNewArray4)
	case 5:
		return c.get(sigMultiNewArray5)
	}
	panic(fmt.Sprintf("sig: multianewarray rank %d out of range [2,5]", ndim))
}

// MultiNewArrayN is (klass, dims_array) -> (oop) for arbitrary rank.
func (c *Catalog) MultiNewArrayN() *Signature { return c.get(sigMultiNewArrayN) }

// CompleteMonitorEnter is (object, lock_slot) -> ().
func (c *Catalog) CompleteMonitorEnter() *Signature { return c.get(sigCompleteMonitorEnter) }

// MonitorLocking is the contended-lock entry; it shares
// CompleteMonitorEnter's shape.
func (c *Catalog) MonitorLocking() *Signature { return c.get(sigCompleteMonitorEnter) }

// CompleteMonitorExit is (object, lock_slot) -> ().
func (c *Catalog) CompleteMonitorExit() *Signature { return c.get(sigCompleteMonitorExit) }

// MonitorNotify is (object) -> ().
func (c *Catalog) MonitorNotify() *Signature { return c.get(sigMonitorNotify) }

// MonitorNotifyAll shares MonitorNotify's shape; the stubs differ, the
// signature does not.
func (c *Catalog) MonitorNotifyAll() *Signature { return c.get(sigMonitorNotify) }

// FastArrayCopy is (src_addr, dst_addr, count) -> ().
func (c *Catalog) FastArrayCopy() *Signature { return c.get(sigFastArrayCopy) }

// CheckcastArrayCopy is (src_addr, dst_addr, count, super_klass) -> (int).
func (c *Catalog) CheckcastArrayCopy() *Signature { return c.get(sigCheckcastArrayCopy) }

// GenericArrayCopy is (src, src_pos, dst, dst_pos, length) -> (int).
func (c *Catalog) GenericArrayCopy() *Signature { return c.get(sigGenericArrayCopy) }

// SlowArrayCopy is (src, src_pos, dst, dst_pos, length) -> (); failures
// surface as exceptions rather than a status result.
func (c *Catalog) SlowArrayCopy() *Signature { return c.get(sigSlowArrayCopy) }

// ArrayFill is (dst_addr, value, count) -> ().
func (c *Catalog) ArrayFill() *Signature { return c.get(sigArrayFill) }

// ArraySort is (array_addr, elem_kind, from, to) -> ().
func (c *Catalog) ArraySort() *Signature { return c.get(sigArraySort) }

// ArrayPartition is (array_addr, elem_kind, from, to, pivots_addr, idx_pivot, idx_pivot2) -> ().
func (c *Catalog) ArrayPartition() *Signature { return c.get(sigArrayPartition) }

// SetMemory is (dst_addr, size, value) -> ().
func (c *Catalog) SetMemory() *Signature { return c.get(sigSetMemory) }

// AESCryptBlock is (from_addr, to_addr, key_addr) -> ().
func (c *Catalog) AESCryptBlock() *Signature { return c.get(sigAESCryptBlock) }

// CipherBlockChaining is (from, to, key, rvec, len) -> (int).
func (c *Catalog) CipherBlockChaining() *Signature { return c.get(sigCipherBlockChaining) }

// ElectronicCodeBook is (from, to, key, len) -> (int).
func (c *Catalog) ElectronicCodeBook() *Signature { return c.get(sigElectronicCodeBook) }

// CounterMode is (in, out, key, counter, len, used_ptr) -> (int).
func (c *Catalog) CounterMode() *Signature { return c.get(sigCounterMode) }

// GaloisCounterMode is (in, len, ct, out, key, state, counter) -> (int).
func (c *Catalog) GaloisCounterMode() *Signature { return c.get(sigGaloisCounterMode) }

// DigestCompress is (buf, state) -> ().
func (c *Catalog) DigestCompress() *Signature { return c.get(sigDigestCompress) }

// DigestCompressWide is (buf, state, block_size) -> ().
func (c *Catalog) DigestCompressWide() *Signature { return c.get(sigDigestCompressWide) }

// DigestCompressMB is (buf, state, ofs, limit) -> (int).
func (c *Catalog) DigestCompressMB() *Signature { return c.get(sigDigestCompressMB) }

// DigestCompressMBWide is (buf, state, block_size, ofs, limit) -> (int).
func (c *Catalog) DigestCompressMBWide() *Signature { return c.get(sigDigestCompressMBWide) }

// MultiplyToLen is (x, xlen, y, ylen, z, zlen) -> ().
func (c *Catalog) MultiplyToLen() *Signature { return c.get(sigMultiplyToLen) }

// SquareToLen is (x, len, z, zlen) -> ().
func (c *Catalog) SquareToLen() *Signature { return c.get(sigSquareToLen) }

// MulAdd is (out, in, offset, len, k) -> (int).
func (c *Catalog) MulAdd() *Signature { return c.get(sigMulAdd) }

// MontgomeryMultiply is (a, b, n, len, inv, m) -> ().
func (c *Catalog) MontgomeryMultiply() *Signature { return c.get(sigMontgomeryMultiply) }

// MontgomerySquare is (a, n, len, inv, m) -> ().
func (c *Catalog) MontgomerySquare() *Signature { return c.get(sigMontgomerySquare) }

// BigIntegerShift is (new_arr, old_arr, new_idx, shift, num_iter) -> ().
func (c *Catalog) BigIntegerShift() *Signature { return c.get(sigBigIntegerShift) }

// VectorizedMismatch is (a, b, length, log2_scale) -> (int).
func (c *Catalog) VectorizedMismatch() *Signature { return c.get(sigVectorizedMismatch) }

// GHASHProcessBlocks is (state, subkey_h, data, blocks) -> ().
func (c *Catalog) GHASHProcessBlocks() *Signature { return c.get(sigGHASHProcessBlocks) }

// ChaCha20Block is (state, result) -> (int).
func (c *Catalog) ChaCha20Block() *Signature { return c.get(sigChaCha20Block) }

// Poly1305ProcessBlocks is (input, length, acc, r) -> ().
func (c *Catalog) Poly1305ProcessBlocks() *Signature { return c.get(sigPoly1305ProcessBlocks) }

// Base64EncodeBlock is (src, sp, sl, dst, dp, is_url) -> ().
func (c *Catalog) Base64EncodeBlock() *Signature { return c.get(sigBase64EncodeBlock) }

// Base64DecodeBlock is (src, sp, sl, dst, dp, is_url, is_mime) -> (int).
func (c *Catalog) Base64DecodeBlock() *Signature { return c.get(sigBase64DecodeBlock) }

// StringIndexOf is (haystack, haystack_len, needle, needle_len) -> (int).
func (c *Catalog) StringIndexOf() *Signature { return c.get(sigStringIndexOf) }

// UpdateBytesCRC32 is (crc, buf, len) -> (int).
func (c *Catalog) UpdateBytesCRC32() *Signature { return c.get(sigUpdateBytesCRC32) }

// UpdateBytesCRC32C is (crc, buf, len) -> (int).
func (c *Catalog) UpdateBytesCRC32C() *Signature { return c.get(sigUpdateBytesCRC32C) }

// UpdateBytesAdler32 is (adler, buf, len) -> (int).
func (c *Catalog) UpdateBytesAdler32() *Signature { return c.get(sigUpdateBytesAdler32) }

// MathDD is (double) -> (double): sin, cos, tan, log, exp and friends.
func (c *Catalog) MathDD() *Signature { return c.get(sigMathDD) }

// MathDDD is (double, double) -> (double): pow and friends.
func (c *Catalog) MathDDD() *Signature { return c.get(sigMathDDD) }

// ModF is (double) -> (fraction, integral).
func (c *Catalog) ModF() *Signature { return c.get(sigModF) }

// L2F is (long) -> (float).
func (c *Catalog) L2F() *Signature { return c.get(sigL2F) }

// Throw is (exception_oop) -> (); control transfers to dispatch.
func (c *Catalog) Throw() *Signature { return c.get(sigThrow) }

// Rethrow is (exception_oop, ret_addr) -> (exception_oop, ret_addr).
func (c *Catalog) Rethrow() *Signature { return c.get(sigRethrow) }

// UncommonTrap is (trap_request) -> ().
func (c *Catalog) UncommonTrap() *Signature { return c.get(sigUncommonTrap) }

// OSREnd is (osr_buf_addr) -> ().
func (c *Catalog) OSREnd() *Signature { return c.get(sigOSREnd) }

// RegisterFinalizer is (object) -> ().
func (c *Catalog) RegisterFinalizer() *Signature { return c.get(sigRegisterFinalizer) }

// NotifyVThread is (vthread, hide) -> ().
func (c *Catalog) NotifyVThread() *Signature { return c.get(sigNotifyVThread) }

// VoidVoid is () -> ().
func (c *Catalog) VoidVoid() *Signature { return c.get(sigVoidVoid) }

// VoidLong is () -> (long).
func (c *Catalog) VoidLong() *Signature { return c.get(sigVoidLong) }

// VectorVector is (in_vec ^ numArgs) -> (out_vec), the shape of vectorized
// math helpers. Unlike the fixed entries the shape space is open, so entries
// are memoized per (numArgs, in, out) key; the first stored signature wins
// and every later call returns it pointer-identically.
func (c *Catalog) VectorVector(numArgs int, in, out types.TypeID) *Signature {
	if numArgs < 1 {
		panic(fmt.Sprintf("sig: vector helper with %d args", numArgs))
	}
	key := vectorKey{numArgs: numArgs, in: in, out: out}
	if got, ok := c.vecs.Load(key); ok {
		return got.(*Signature)
	}
	domain := make([]types.TypeID, numArgs)
	for i := range domain {
		domain[i] = in
	}
	name := fmt.Sprintf("vector_math_%dv", numArgs)
	fresh := c.make(name, domain, []types.TypeID{out})
	got, _ := c.vecs.LoadOrStore(key, fresh)
	return got.(*Signature)
}

// Prewarm forces construction of every fixed catalog entry, fanning out over
// at most limit goroutines. Startup calls it so steady-state compilation
// never pays first-build cost; it also doubles as a self-check that every
// builder row is populated.
func (c *Catalog) Prewarm(limit int) error {
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for h := helperSig(0); h < numHelperSigs; h++ {
		h := h
		g.Go(func() error {
			if sigBuilders[h] == nil {
				return fmt.Errorf("sig: no builder for catalog entry %d", int(h))
			}
			if got := c.get(h); got == nil {
				return fmt.Errorf("sig: builder for catalog entry %d produced nil", int(h))
			}
			return nil
		})
	}
	return g.Wait()
}
