// Package secretflash implements a small key-blob store at the top of on-chip
// flash, just below the wear-leveling backing region, and the fixed 32-byte
// raw HID protocol used to read, write and erase it.
//
// The device side is an Engine (sector erase, read-modify-program write)
// driven by a Dispatcher, with a Guard that rejects re-entrant requests and
// lets a key press abort a long erase or write between sectors. The host side
// is a Client speaking the same frames.
//
// Hardware is reached through the HAL interface: MemFlash and FileFlash for
// tests and emulation, SPIFlash for a SPI NOR chip on an FT2232H bench
// adapter.
//
// # Frame layout
//
// Offsets are relative to the command byte, which is byte 0, or byte 1 when
// the transport passes a report ID through.
//
//	INFO   req  [0]=0xA0
//	       resp [1]=status [2:6]=storage size [6:10]=flash size
//	            [10:14]=backing size [14:18]=storage base [18]=max read [19]=max write
//	READ   req  [0]=0xA1 [1:5]=offset [5]=size
//	       resp [1]=status [2]=size [3:3+size]=data
//	WRITE  req  [0]=0xA2 [1:5]=offset [5]=size [6:6+size]=data
//	       resp [1]=status
//	ERASE  req  [0]=0xA3 [1:5]=offset [5:9]=size
//	       resp [1]=status
//
// Multi-byte fields are big-endian.
//
// # References:
//
// FTDI (https://ftdichip.com/document/application-notes/)
//   - [FTDI-AN_108]: Command Processor for MPSSE and MCU Host Bus Emulation Modes (https://ftdichip.com/wp-content/uploads/2020/08/AN_108_Command_Processor_for_MPSSE_and_MCU_Host_Bus_Emulation_Modes.pdf)
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//   - [FTDI-AN_135]: FTDI MPSSE Basics (https://ftdichip.com/wp-content/uploads/2020/08/AN_135_MPSSE_Basics.pdf)
//
// SPI Flash
//   - [N25Q32]: N25Q032A Micron Serial NOR Flash Memory datasheet
//   - [W25Q128]: W25Q128JV-DTR Winbond Serial Flash Memory (https://www.winbond.com/resource-files/W25Q128JV_DTR%20RevD%2012232024%20Plus.pdf)
//   - [W25Q16JV]: W25Q16JV Winbond Serial Flash Memory
package secretflash
