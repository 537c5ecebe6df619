// Package kfmt provides a minimal formatted output implementation that can be
// safely used by kernel code before the Go runtime has been fully initialized.
package kfmt

import (
	"io"
)

// maxNumBufSize defines the buffer size for formatting numbers. It is wide
// enough to hold a 64-bit value formatted in base 8.
const maxNumBufSize = 32

var (
	errMissingArg   = []byte("%!(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// outputSink is the io.Writer where Printf sends its output. Until a
	// sink is registered, Printf output is dropped.
	outputSink io.Writer
)

// SetOutputSink sets the target for calls to Printf to w.
func SetOutputSink(w io.Writer) {
	outputSink = w
}

// GetOutputSink returns the io.Writer that currently receives Printf output.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf works like Fprintf with the registered output sink as its target. If
// no sink has been registered, the output is discarded.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf provides a minimal fmt.Fprintf replacement that does not depend on
// the reflect package and does not allocate memory for its supported verbs.
//
// The following subset of formatting verbs is supported:
//
// Strings:
//	%s the uninterpreted bytes of the string or byte slice
//
// Integers:
//	%o base 8
//	%d base 10
//	%x base 16, with lower-case letters for a-f
//
// Booleans:
//	%t "true" or "false"
//
// Width is specified by an optional decimal number immediately preceding the
// verb. If absent, the width is whatever is necessary to represent the value.
// String and base-10 values shorter than the specified width are left-padded
// with spaces; base-16 values are left-padded with zeroes.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArgIndex int
		padLen       int
		fmtLen       = len(format)
	)

	for index := 0; index < fmtLen; index++ {
		if format[index] != '%' {
			writeByte(w, format[index])
			continue
		}

		// Scan til we hit the verb character
		padLen = 0
		index++
	parseFmt:
		for ; index < fmtLen; index++ {
			nextCh := format[index]
			switch {
			case nextCh == '%':
				writeByte(w, '%')
				break parseFmt
			case nextCh >= '0' && nextCh <= '9':
				padLen = (padLen * 10) + int(nextCh-'0')
				continue
			case nextCh == 'd' || nextCh == 'o' || nextCh == 'x' || nextCh == 's' || nextCh == 't':
				if nextArgIndex >= len(args) {
					doWrite(w, errMissingArg)
					break parseFmt
				}

				switch nextCh {
				case 'o':
					fmtInt(w, args[nextArgIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[nextArgIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[nextArgIndex], 16, padLen)
				case 's':
					fmtString(w, args[nextArgIndex], padLen)
				case 't':
					fmtBool(w, args[nextArgIndex])
				}

				nextArgIndex++
				break parseFmt
			default:
				doWrite(w, errNoVerb)
				break parseFmt
			}
		}
	}
}

// fmtBool formats a boolean value.
func fmtBool(w io.Writer, v interface{}) {
	switch bv, ok := v.(bool); {
	case !ok:
		doWrite(w, errWrongArgType)
	case bv:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString formats a string or byte slice, left-padding it with spaces if
// its length is less than padLen.
func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		for i := len(castedVal); i < padLen; i++ {
			writeByte(w, ' ')
		}
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		for i := len(castedVal); i < padLen; i++ {
			writeByte(w, ' ')
		}
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtInt formats an integer value in the requested base. Base-16 values are
// left-padded with zeroes and all other bases with spaces up to padLen.
func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval    int64
		uval    uint64
		divider uint64
		padCh   byte
		left    = maxNumBufSize
		buf     [maxNumBufSize]byte
	)

	// The number buffer bounds the amount of padding a verb can request
	if padLen > maxNumBufSize {
		padLen = maxNumBufSize
	}

	switch base {
	case 8:
		divider = 8
		padCh = ' '
	case 10:
		divider = 10
		padCh = ' '
	case 16:
		divider = 16
		padCh = '0'
	}

	switch castedVal := v.(type) {
	case uint8:
		uval = uint64(castedVal)
	case uint16:
		uval = uint64(castedVal)
	case uint32:
		uval = uint64(castedVal)
	case uint64:
		uval = castedVal
	case uintptr:
		uval = uint64(castedVal)
	case uint:
		uval = uint64(castedVal)
	case int8:
		sval = int64(castedVal)
	case int16:
		sval = int64(castedVal)
	case int32:
		sval = int64(castedVal)
	case int64:
		sval = castedVal
	case int:
		sval = int64(castedVal)
	default:
		doWrite(w, errWrongArgType)
		return
	}

	negative := sval < 0
	if negative {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for {
		left--
		digit := uval % divider
		if digit < 10 {
			buf[left] = byte('0' + digit)
		} else {
			buf[left] = byte('a' + digit - 10)
		}

		uval /= divider
		if uval == 0 {
			break
		}
	}

	if negative {
		left--
		buf[left] = '-'
	}

	for digits := maxNumBufSize - left; digits < padLen; digits++ {
		left--
		buf[left] = padCh
	}

	doWrite(w, buf[left:])
}

// writeByte emits a single byte to w.
func writeByte(w io.Writer, b byte) {
	var buf [1]byte
	buf[0] = b
	doWrite(w, buf[:])
}

func doWrite(w io.Writer, p []byte) {
	if w != nil {
		w.Write(p)
	}
}
