package wasm

import "encoding/binary"

// Encode encodes the module to the WebAssembly binary format.
func (m *Module) Encode() []byte {
	out := make([]byte, 0, 256)
	out = binary.LittleEndian.AppendUint32(out, Magic)
	out = binary.LittleEndian.AppendUint32(out, Version)

	if len(m.Types) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Types)))
		for _, ft := range m.Types {
			sec = append(sec, FuncTypeByte)
			sec = appendValTypes(sec, ft.Params)
			sec = appendValTypes(sec, ft.Results)
		}
		out = appendSection(out, SectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Imports)))
		for _, imp := range m.Imports {
			sec = appendName(sec, imp.Module)
			sec = appendName(sec, imp.Name)
			sec = append(sec, imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				sec = AppendULEB128(sec, uint64(imp.Desc.TypeIdx))
			case KindTable:
				sec = appendTableType(sec, *imp.Desc.Table)
			case KindMemory:
				sec = appendLimits(sec, imp.Desc.Memory.Limits)
			case KindGlobal:
				sec = appendGlobalType(sec, *imp.Desc.Global)
			}
		}
		out = appendSection(out, SectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			sec = AppendULEB128(sec, uint64(typeIdx))
		}
		out = appendSection(out, SectionFunction, sec)
	}

	if len(m.Tables) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Tables)))
		for _, t := range m.Tables {
			sec = appendTableType(sec, t)
		}
		out = appendSection(out, SectionTable, sec)
	}

	if len(m.Memories) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Memories)))
		for _, mem := range m.Memories {
			sec = appendLimits(sec, mem.Limits)
		}
		out = appendSection(out, SectionMemory, sec)
	}

	if len(m.Globals) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Globals)))
		for _, g := range m.Globals {
			sec = appendGlobalType(sec, g.Type)
			sec = append(sec, g.Init...)
		}
		out = appendSection(out, SectionGlobal, sec)
	}

	if len(m.Exports) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Exports)))
		for _, exp := range m.Exports {
			sec = appendName(sec, exp.Name)
			sec = append(sec, exp.Kind)
			sec = AppendULEB128(sec, uint64(exp.Idx))
		}
		out = appendSection(out, SectionExport, sec)
	}

	if m.Start != nil {
		out = appendSection(out, SectionStart, AppendULEB128(nil, uint64(*m.Start)))
	}

	if len(m.Elements) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Elements)))
		for _, elem := range m.Elements {
			// flags 0: table 0, funcref implied; flags 2: explicit table and elemkind
			if elem.TableIdx == 0 {
				sec = AppendULEB128(sec, 0)
				sec = append(sec, elem.Offset...)
			} else {
				sec = AppendULEB128(sec, 2)
				sec = AppendULEB128(sec, uint64(elem.TableIdx))
				sec = append(sec, elem.Offset...)
				sec = append(sec, 0x00)
			}
			sec = AppendULEB128(sec, uint64(len(elem.FuncIdxs)))
			for _, idx := range elem.FuncIdxs {
				sec = AppendULEB128(sec, uint64(idx))
			}
		}
		out = appendSection(out, SectionElement, sec)
	}

	if len(m.Code) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Code)))
		for _, body := range m.Code {
			fn := AppendULEB128(nil, uint64(len(body.Locals)))
			for _, l := range body.Locals {
				fn = AppendULEB128(fn, uint64(l.Count))
				fn = append(fn, byte(l.ValType))
			}
			fn = append(fn, body.Code...)
			sec = AppendULEB128(sec, uint64(len(fn)))
			sec = append(sec, fn...)
		}
		out = appendSection(out, SectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := AppendULEB128(nil, uint64(len(m.Data)))
		for _, d := range m.Data {
			if d.MemIdx == 0 {
				sec = AppendULEB128(sec, 0)
			} else {
				sec = AppendULEB128(sec, 2)
				sec = AppendULEB128(sec, uint64(d.MemIdx))
			}
			sec = append(sec, d.Offset...)
			sec = AppendULEB128(sec, uint64(len(d.Init)))
			sec = append(sec, d.Init...)
		}
		out = appendSection(out, SectionData, sec)
	}

	return out
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = AppendULEB128(out, uint64(len(body)))
	return append(out, body...)
}

func appendName(buf []byte, s string) []byte {
	buf = AppendULEB128(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendValTypes(buf []byte, types []ValType) []byte {
	buf = AppendULEB128(buf, uint64(len(types)))
	for _, t := range types {
		buf = append(buf, byte(t))
	}
	return buf
}

func appendLimits(buf []byte, l Limits) []byte {
	if l.Max != nil {
		buf = append(buf, LimitsHasMax)
		buf = AppendULEB128(buf, l.Min)
		return AppendULEB128(buf, *l.Max)
	}
	buf = append(buf, 0)
	return AppendULEB128(buf, l.Min)
}

func appendTableType(buf []byte, t TableType) []byte {
	buf = append(buf, byte(t.ElemType))
	return appendLimits(buf, t.Limits)
}

func appendGlobalType(buf []byte, g GlobalType) []byte {
	buf = append(buf, byte(g.ValType))
	if g.Mutable {
		return append(buf, 1)
	}
	return append(buf, 0)
}
