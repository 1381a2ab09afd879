package c37118

// CRC16 计算 CRC-CCITT（多项式 0x1021，初值 0xFFFF，不反射，无最终异或）
// C37.118 的 CHK 字段与中继帧的可选尾部均使用该算法
func CRC16(b []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, v := range b {
		crc ^= uint16(v) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
