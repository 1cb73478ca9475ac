package midi

import "fmt"

// RunningStatus is the status byte carried over between consecutive
// messages of one stream. Zero means no running status is active.
type RunningStatus byte

// Update applies the running status rules for a message starting with
// status: channel messages set it, system common messages clear it and
// real-time messages leave it untouched.
func (rs *RunningStatus) Update(status byte) error {
	switch {
	case status >= 0x80 && status <= 0xef:
		*rs = RunningStatus(status)
	case status >= 0xf0 && status <= 0xf7:
		*rs = 0
	case status >= 0xf8:
	default:
		return fmt.Errorf("%w: 0x%02x", ErrInvalidStatus, status)
	}
	return nil
}

// elides reports whether a message with this status byte can be sent
// without it.
func (rs *RunningStatus) elides(status byte) bool {
	if rs == nil || *rs == 0 {
		return false
	}
	return status >= 0x80 && status <= 0xef && status == byte(*rs)
}

// implied reports whether b is a data byte continuing the running status.
func (rs *RunningStatus) implied(b byte) bool {
	if rs == nil || *rs == 0 {
		return false
	}
	return b < 0x80
}

func encodeThreeBytes(d *Data, rs *RunningStatus, buf []byte) (int, error) {
	if rs.elides(d.Bytes[0]) {
		if len(buf) < 2 {
			return 0, ErrBufferTooSmall
		}
		buf[0] = d.Bytes[1]
		buf[1] = d.Bytes[2]
		return 2, nil
	}

	if len(buf) < 3 {
		return 0, ErrBufferTooSmall
	}
	if rs != nil {
		if err := rs.Update(d.Bytes[0]); err != nil {
			return 0, err
		}
	} else if d.Bytes[0] < 0x80 {
		return 0, fmt.Errorf("%w: 0x%02x", ErrInvalidStatus, d.Bytes[0])
	}
	copy(buf, d.Bytes[:3])
	return 3, nil
}

func decodeThreeBytes(d *Data, rs *RunningStatus, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}

	var n int
	if rs.implied(buf[0]) {
		if len(buf) < 2 {
			return 0, ErrBufferTooSmall
		}
		d.Bytes[0] = byte(*rs)
		d.Bytes[1] = buf[0]
		d.Bytes[2] = buf[1]
		n = 2
	} else {
		if buf[0] < 0x80 {
			return 0, ErrNoRunningStatus
		}
		if len(buf) < 3 {
			return 0, ErrBufferTooSmall
		}
		copy(d.Bytes[:3], buf[:3])
		n = 3
	}
	d.Size = 3

	if rs != nil {
		if err := rs.Update(d.Bytes[0]); err != nil {
			return 0, err
		}
	}
	return n, nil
}
