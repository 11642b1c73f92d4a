package gps

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	ubxSync1 = 0xB5
	ubxSync2 = 0x62

	ubxClassCFG = 0x06
	ubxIDNAV5   = 0x24

	// DynModelAirborne1g is the u-blox dynamic platform model for airborne
	// use with less than 1g acceleration. It keeps the fix above 12 km.
	DynModelAirborne1g = 6
)

// nav5 is the payload of UBX-CFG-NAV5
type nav5 struct {
	Mask             uint16
	DynModel         uint8
	FixMode          uint8
	FixedAlt         int32  // 0.01 m
	FixedAltVar      uint32 // 0.0001 m^2
	MinElev          int8   // degrees
	DrLimit          uint8
	PDop             uint16 // 0.1
	TDop             uint16 // 0.1
	PAcc             uint16 // m
	TAcc             uint16 // m
	StaticHoldThresh uint8
	DgpsTimeOut      uint8
	Reserved         [12]byte
}

// AirborneConfig returns the UBX-CFG-NAV5 frame switching a u-blox receiver
// to the airborne dynamic model, leaving the other navigation settings at
// their defaults.
func AirborneConfig() []byte {
	return ubxFrame(ubxClassCFG, ubxIDNAV5, nav5{
		Mask:        0xFFFF,
		DynModel:    DynModelAirborne1g,
		FixMode:     3, // auto 2D/3D
		FixedAltVar: 10000,
		MinElev:     5,
		PDop:        250,
		TDop:        250,
		PAcc:        100,
		TAcc:        300,
	})
}

// SetAirborne writes the airborne configuration to the receiver
func SetAirborne(w io.Writer) error {
	if _, err := w.Write(AirborneConfig()); err != nil {
		return fmt.Errorf("setting airborne mode: %w", err)
	}
	return nil
}

func ubxFrame(class, id byte, payload any) []byte {
	var body bytes.Buffer
	body.WriteByte(class)
	body.WriteByte(id)
	_ = binary.Write(&body, binary.LittleEndian, uint16(binary.Size(payload)))
	_ = binary.Write(&body, binary.LittleEndian, payload)

	var ckA, ckB byte
	for _, b := range body.Bytes() {
		ckA += b
		ckB += ckA
	}

	frame := make([]byte, 0, body.Len()+4)
	frame = append(frame, ubxSync1, ubxSync2)
	frame = append(frame, body.Bytes()...)
	return append(frame, ckA, ckB)
}
