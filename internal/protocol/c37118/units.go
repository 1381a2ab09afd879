package c37118

import "fmt"

// PhasorUnit PHUNIT：测量类型 + 24 位无符号换算系数（单位 1e-5 V/A 每 bit）
type PhasorUnit struct {
	Kind  MeasurementKind
	Scale uint32
}

func decodePhasorUnit(raw uint32, field string) (PhasorUnit, error) {
	kind, err := lookup(measurementKinds, field+".kind", uint8(raw>>24))
	if err != nil {
		return PhasorUnit{}, err
	}
	return PhasorUnit{Kind: kind, Scale: raw & 0x00FFFFFF}, nil
}

func (u PhasorUnit) encode() uint32 {
	return uint32(u.Kind)<<24 | u.Scale&0x00FFFFFF
}

// Factor INTEGER 相量的物理量换算系数
func (u PhasorUnit) Factor() float64 { return float64(u.Scale) * 1e-5 }

func (u PhasorUnit) String() string { return fmt.Sprintf("%s*%d", u.Kind, u.Scale) }

// AnalogUnit ANUNIT：模拟量类型 + 24 位有符号换算系数
type AnalogUnit struct {
	Kind  AnalogKind
	Scale int32
}

func decodeAnalogUnit(raw uint32, field string) (AnalogUnit, error) {
	kind, err := lookup(analogKinds, field+".kind", uint8(raw>>24))
	if err != nil {
		return AnalogUnit{}, err
	}
	scale := int32(raw<<8) >> 8
	return AnalogUnit{Kind: kind, Scale: scale}, nil
}

func (u AnalogUnit) encode() uint32 {
	return uint32(u.Kind)<<24 | uint32(u.Scale)&0x00FFFFFF
}

// DigitalUnit DIGUNIT 原样保存；高 16 位为正常状态，低 16 位为有效位掩码
type DigitalUnit struct {
	Mask uint32
}

func (u DigitalUnit) Normal() uint16 { return uint16(u.Mask >> 16) }

func (u DigitalUnit) Valid() uint16 { return uint16(u.Mask) }
