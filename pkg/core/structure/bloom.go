package structure

import (
	"hash/fnv"
	"math"
	"sync"
)

// BloomFilter answers "definitely absent" for encoded view keys.
type BloomFilter struct {
	bitset []bool
	k      uint
	m      uint
	count  uint
	lock   sync.RWMutex
}

func NewBloomFilter(n uint, p float64) *BloomFilter {
	if n == 0 {
		n = 1
	}
	// m = - (n * ln(p)) / (ln(2)^2)
	// k = (m / n) * ln(2)
	m := uint(math.Ceil(float64(n) * math.Log(p) / math.Log(1.0/math.Pow(2.0, math.Log(2.0)))))
	k := uint(math.Ceil((float64(m) / float64(n)) * math.Log(2.0)))
	if m == 0 {
		m = 1
	}
	if k == 0 {
		k = 1
	}

	return &BloomFilter{
		bitset: make([]bool, m),
		k:      k,
		m:      m,
	}
}

func (bf *BloomFilter) Add(key string) {
	bf.lock.Lock()
	defer bf.lock.Unlock()

	h1, h2 := hashes(key)
	for i := uint(0); i < bf.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(bf.m)
		bf.bitset[pos] = true
	}
	bf.count++
}

func (bf *BloomFilter) Contains(key string) bool {
	bf.lock.RLock()
	defer bf.lock.RUnlock()

	h1, h2 := hashes(key)
	for i := uint(0); i < bf.k; i++ {
		pos := (h1 + uint32(i)*h2) % uint32(bf.m)
		if !bf.bitset[pos] {
			return false
		}
	}
	return true
}

// hashes derives the two base hashes for double hashing from one 64-bit FNV sum.
func hashes(key string) (uint32, uint32) {
	h := fnv.New64a()
	h.Write([]byte(key))
	sum := h.Sum64()
	return uint32(sum), uint32(sum>>32) | 1
}

func (bf *BloomFilter) Stats() map[string]interface{} {
	bf.lock.RLock()
	defer bf.lock.RUnlock()
	return map[string]interface{}{
		"bloom_bits_size": bf.m,
		"bloom_hashes":    bf.k,
		"bloom_count":     bf.count,
	}
}
