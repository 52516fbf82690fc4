package audio

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Library holds pre-recorded prompt clips in memory, normalized to mono
// linear PCM at a single sample rate. Clips are loaded once at startup and
// never mutated, so reads are cheap.
type Library struct {
	mu    sync.RWMutex
	clips map[string][]byte // clip name -> linear16 PCM bytes
	rate  int
}

// LoadLibrary reads every supported file in dir into memory. Supported
// extensions: .pcm and .raw (headerless linear16 at the target rate), .ulaw
// (headerless mu-law at the target rate), .wav (16-bit PCM, any rate,
// downmixed and resampled). Unreadable clips are skipped; the load only
// fails if the directory itself cannot be read.
func LoadLibrary(dir string, sampleRate int) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading audio directory: %w", err)
	}

	lib := &Library{clips: make(map[string][]byte), rate: sampleRate}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := lib.loadFile(filepath.Join(dir, name))
		if err != nil {
			// A bad clip should not take the gateway down.
			continue
		}
		if data != nil {
			lib.clips[name] = data
		}
	}
	return lib, nil
}

// NewLibrary builds a library from in-memory clips. Used by tests and by the
// synthesized-audio cache.
func NewLibrary(sampleRate int) *Library {
	return &Library{clips: make(map[string][]byte), rate: sampleRate}
}

func (l *Library) loadFile(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pcm", ".raw":
		return os.ReadFile(path)
	case ".ulaw":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return PCMToBytes(MulawCodec{}.Decode(raw)), nil
	case ".wav":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return decodeWAV(raw, l.rate)
	default:
		return nil, nil
	}
}

// SampleRate returns the rate every stored clip is normalized to.
func (l *Library) SampleRate() int { return l.rate }

// Get returns a clip by file name.
func (l *Library) Get(name string) ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.clips[name]
	return data, ok
}

// Has reports whether a clip exists.
func (l *Library) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// Put stores a clip. The synthesized-audio cache uses this to reuse TTS
// output within a process lifetime.
func (l *Library) Put(name string, data []byte) {
	l.mu.Lock()
	l.clips[name] = data
	l.mu.Unlock()
}

// Count returns the number of loaded clips.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.clips)
}

// Names returns the sorted clip names.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.clips))
	for name := range l.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseChain splits "a.pcm + b.pcm" into clip names.
func ParseChain(chain string) []string {
	var names []string
	for _, part := range strings.Split(chain, "+") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ValidateChain returns the clip names in chain that are not loaded.
func (l *Library) ValidateChain(chain string) []string {
	var missing []string
	for _, name := range ParseChain(chain) {
		if !l.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Concat joins the clips of a chain into one PCM buffer. It fails on the
// first missing clip so callers can fall back to synthesis.
func (l *Library) Concat(chain string) ([]byte, error) {
	names := ParseChain(chain)
	if len(names) == 0 {
		return nil, fmt.Errorf("empty audio chain %q", chain)
	}

	var out []byte
	for _, name := range names {
		data, ok := l.Get(name)
		if !ok {
			return nil, fmt.Errorf("audio clip %q not loaded", name)
		}
		out = append(out, data...)
	}
	return out, nil
}

// PickByPrefix returns a random clip name with the given prefix, for
// variation in filler prompts.
func (l *Library) PickByPrefix(prefix string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var matches []string
	for name := range l.clips {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[rand.Intn(len(matches))], true
}

// wavTargetRMS levels externally recorded WAV clips so chained prompts play
// at a consistent loudness. Headerless .pcm/.raw/.ulaw assets are assumed
// pre-leveled and load untouched.
const wavTargetRMS = 4000

// decodeWAV extracts 16-bit PCM from a RIFF WAVE file, downmixes to mono,
// resamples to targetRate, and levels the loudness.
func decodeWAV(raw []byte, targetRate int) ([]byte, error) {
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF WAVE file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		data       []byte
	)

	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("short fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(raw[body:]))
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAVE format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2:]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4:]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14:]))
		case "data":
			data = raw[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if data == nil || channels == 0 {
		return nil, fmt.Errorf("missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}

	pcm, err := BytesToPCM(data[:len(data)-len(data)%2])
	if err != nil {
		return nil, err
	}

	if channels > 1 {
		mono := make([]int16, len(pcm)/channels)
		for i := range mono {
			var sum int
			for ch := 0; ch < channels; ch++ {
				sum += int(pcm[i*channels+ch])
			}
			mono[i] = int16(sum / channels)
		}
		pcm = mono
	}

	if sampleRate != targetRate {
		pcm = Resample(pcm, sampleRate, targetRate)
	}
	return PCMToBytes(Normalize(pcm, wavTargetRMS)), nil
}
