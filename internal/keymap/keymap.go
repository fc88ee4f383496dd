// Package keymap translates text characters into key codes for the write
// operation. The table assumes a US layout; characters it does not cover
// are reported as unmapped and skipped by the caller.
package keymap

// Key codes follow include/uapi/linux/input-event-codes.h.
const (
	KEY_ESC        uint16 = 1
	KEY_1          uint16 = 2
	KEY_2          uint16 = 3
	KEY_3          uint16 = 4
	KEY_4          uint16 = 5
	KEY_5          uint16 = 6
	KEY_6          uint16 = 7
	KEY_7          uint16 = 8
	KEY_8          uint16 = 9
	KEY_9          uint16 = 10
	KEY_0          uint16 = 11
	KEY_MINUS      uint16 = 12
	KEY_EQUAL      uint16 = 13
	KEY_BACKSPACE  uint16 = 14
	KEY_TAB        uint16 = 15
	KEY_Q          uint16 = 16
	KEY_W          uint16 = 17
	KEY_E          uint16 = 18
	KEY_R          uint16 = 19
	KEY_T          uint16 = 20
	KEY_Y          uint16 = 21
	KEY_U          uint16 = 22
	KEY_I          uint16 = 23
	KEY_O          uint16 = 24
	KEY_P          uint16 = 25
	KEY_LEFTBRACE  uint16 = 26
	KEY_RIGHTBRACE uint16 = 27
	KEY_ENTER      uint16 = 28
	KEY_LEFTCTRL   uint16 = 29
	KEY_A          uint16 = 30
	KEY_S          uint16 = 31
	KEY_D          uint16 = 32
	KEY_F          uint16 = 33
	KEY_G          uint16 = 34
	KEY_H          uint16 = 35
	KEY_J          uint16 = 36
	KEY_K          uint16 = 37
	KEY_L          uint16 = 38
	KEY_SEMICOLON  uint16 = 39
	KEY_APOSTROPHE uint16 = 40
	KEY_GRAVE      uint16 = 41
	KEY_LEFTSHIFT  uint16 = 42
	KEY_BACKSLASH  uint16 = 43
	KEY_Z          uint16 = 44
	KEY_X          uint16 = 45
	KEY_C          uint16 = 46
	KEY_V          uint16 = 47
	KEY_B          uint16 = 48
	KEY_N          uint16 = 49
	KEY_M          uint16 = 50
	KEY_COMMA      uint16 = 51
	KEY_DOT        uint16 = 52
	KEY_SLASH      uint16 = 53
	KEY_RIGHTSHIFT uint16 = 54
	KEY_LEFTALT    uint16 = 56
	KEY_SPACE      uint16 = 57
)

// Mapping is the physical key stroke producing a character.
type Mapping struct {
	Code uint16
	// Shift indicates the character requires a held shift modifier.
	Shift bool
}

var runeMappings = buildRuneMappings()

// Lookup returns the key stroke for r, and whether r is mapped at all.
func Lookup(r rune) (Mapping, bool) {
	m, ok := runeMappings[r]
	return m, ok
}

func buildRuneMappings() map[rune]Mapping {
	m := map[rune]Mapping{
		' ':  {Code: KEY_SPACE},
		'\n': {Code: KEY_ENTER},
		'\t': {Code: KEY_TAB},
	}

	letters := []struct {
		r    rune
		code uint16
	}{
		{'a', KEY_A}, {'b', KEY_B}, {'c', KEY_C}, {'d', KEY_D}, {'e', KEY_E},
		{'f', KEY_F}, {'g', KEY_G}, {'h', KEY_H}, {'i', KEY_I}, {'j', KEY_J},
		{'k', KEY_K}, {'l', KEY_L}, {'m', KEY_M}, {'n', KEY_N}, {'o', KEY_O},
		{'p', KEY_P}, {'q', KEY_Q}, {'r', KEY_R}, {'s', KEY_S}, {'t', KEY_T},
		{'u', KEY_U}, {'v', KEY_V}, {'w', KEY_W}, {'x', KEY_X}, {'y', KEY_Y},
		{'z', KEY_Z},
	}
	for _, l := range letters {
		m[l.r] = Mapping{Code: l.code}
		m[l.r-'a'+'A'] = Mapping{Code: l.code, Shift: true}
	}

	// Digit row with its shifted symbols.
	digits := []struct {
		plain   rune
		shifted rune
		code    uint16
	}{
		{'1', '!', KEY_1}, {'2', '@', KEY_2}, {'3', '#', KEY_3},
		{'4', '$', KEY_4}, {'5', '%', KEY_5}, {'6', '^', KEY_6},
		{'7', '&', KEY_7}, {'8', '*', KEY_8}, {'9', '(', KEY_9},
		{'0', ')', KEY_0},
	}
	for _, d := range digits {
		m[d.plain] = Mapping{Code: d.code}
		m[d.shifted] = Mapping{Code: d.code, Shift: true}
	}

	punctuation := []struct {
		plain   rune
		shifted rune
		code    uint16
	}{
		{'-', '_', KEY_MINUS},
		{'=', '+', KEY_EQUAL},
		{'[', '{', KEY_LEFTBRACE},
		{']', '}', KEY_RIGHTBRACE},
		{';', ':', KEY_SEMICOLON},
		{'\'', '"', KEY_APOSTROPHE},
		{'`', '~', KEY_GRAVE},
		{'\\', '|', KEY_BACKSLASH},
		{',', '<', KEY_COMMA},
		{'.', '>', KEY_DOT},
		{'/', '?', KEY_SLASH},
	}
	for _, p := range punctuation {
		m[p.plain] = Mapping{Code: p.code}
		m[p.shifted] = Mapping{Code: p.code, Shift: true}
	}

	return m
}

// WritableKeyCodes lists every key code the write operation can emit,
// including the shift modifier. Transports that must pre-register key
// capabilities (uinput) consume this.
func WritableKeyCodes() []uint16 {
	seen := make(map[uint16]struct{}, len(runeMappings)+1)
	codes := make([]uint16, 0, len(runeMappings)+1)
	add := func(c uint16) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	add(KEY_LEFTSHIFT)
	for _, m := range runeMappings {
		add(m.Code)
	}
	return codes
}
