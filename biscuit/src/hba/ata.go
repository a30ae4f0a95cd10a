package hba

/// ATA command opcodes carried in the H2D FIS command field.
const (
	ATA_READ_DMA     uint8 = 0xc8
	ATA_WRITE_DMA    uint8 = 0xca
	ATA_READ_DMAEXT  uint8 = 0x25
	ATA_WRITE_DMAEXT uint8 = 0x35
	ATA_FLUSH_EXT    uint8 = 0xea
	ATA_SET_FEATURES uint8 = 0xef
	ATA_IDENTIFY     uint8 = 0xec
	ATA_IDENTIFY_PKT uint8 = 0xa1
	ATA_PACKET       uint8 = 0xa0
)

/// SET FEATURES subcommands.
const (
	FEAT_WCACHE_ON    uint8 = 0x02
	FEAT_WCACHE_OFF   uint8 = 0x82
	FEAT_READAHEAD_ON uint8 = 0xaa
)

/// SCSI opcodes used in ATAPI packets.
const (
	SCSI_READ_CAPACITY uint8 = 0x25
	SCSI_READ10        uint8 = 0x28
	SCSI_WRITE10       uint8 = 0x2a
)

/// IDENTIFY word offsets.
const (
	ID_SERIAL    = 10 /// words 10-19
	ID_SERIALEND = 20
	ID_FW        = 23 /// words 23-26
	ID_FWEND     = 27
	ID_MODEL     = 27 /// words 27-46
	ID_MODELEND  = 47
	ID_LBA28     = 60 /// words 60-61
	ID_CMDSET2   = 83 /// bit 10: 48-bit address feature set
	ID_LBA48     = 100 /// words 100-103

	ID_CMDSET2_LBA48 uint16 = 1 << 10
)

/// SECTSZ is the ATA logical sector size.
const SECTSZ = 512

/// LBA28_MAX is the first block a 28-bit command cannot address.
const LBA28_MAX uint64 = 1 << 28

/// Error register bits.
const (
	ATA_ERR_ABRT uint8 = 1 << 2 /// command aborted
	ATA_ERR_IDNF uint8 = 1 << 4 /// address not found
)
