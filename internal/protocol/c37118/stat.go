package c37118

// Stat 数据帧中每个站点的 STAT 状态字
//
//	bit15-14 数据错误  bit13 同步  bit12 排序  bit11 触发
//	bit10 配置变更  bit9 数据修改  bit8-6 时间质量
//	bit5-4 失锁时长  bit3-0 触发原因
type Stat struct {
	Raw uint16

	DataError     DataError
	Sync          SyncState
	Sorting       Sorting
	Trigger       bool
	ConfigChange  bool
	DataModified  bool
	TimeQuality   TimeQuality
	UnlockedTime  UnlockedTime
	TriggerReason TriggerReason
}

// DecodeStat 按位拆解 STAT 字
func DecodeStat(raw uint16) (Stat, error) {
	s := Stat{
		Raw:          raw,
		Trigger:      raw&(1<<11) != 0,
		ConfigChange: raw&(1<<10) != 0,
		DataModified: raw&(1<<9) != 0,
	}
	var err error
	if s.DataError, err = lookup(dataErrors, "stat.data_error", uint8(raw>>14&0x3)); err != nil {
		return s, err
	}
	if s.Sync, err = lookup(syncStates, "stat.sync", uint8(raw>>13&0x1)); err != nil {
		return s, err
	}
	if s.Sorting, err = lookup(sortings, "stat.sorting", uint8(raw>>12&0x1)); err != nil {
		return s, err
	}
	if s.TimeQuality, err = lookup(timeQualities, "stat.time_quality", uint8(raw>>6&0x7)); err != nil {
		return s, err
	}
	if s.UnlockedTime, err = lookup(unlockedTimes, "stat.unlocked_time", uint8(raw>>4&0x3)); err != nil {
		return s, err
	}
	if s.TriggerReason, err = lookup(triggerReasons, "stat.trigger_reason", uint8(raw&0xF)); err != nil {
		return s, err
	}
	return s, nil
}

// Encode 由各字段重新组装 STAT 字（忽略 Raw）
func (s Stat) Encode() uint16 {
	v := uint16(s.DataError&0x3)<<14 |
		uint16(s.Sync&0x1)<<13 |
		uint16(s.Sorting&0x1)<<12 |
		uint16(s.TimeQuality&0x7)<<6 |
		uint16(s.UnlockedTime&0x3)<<4 |
		uint16(s.TriggerReason&0xF)
	if s.Trigger {
		v |= 1 << 11
	}
	if s.ConfigChange {
		v |= 1 << 10
	}
	if s.DataModified {
		v |= 1 << 9
	}
	return v
}
