package ioref

// Backend is the contract an external storage driver (local disk, FTP,
// SFTP, optical media, tape, ...) must satisfy to be usable by the archive
// engine. Concrete backends are out of scope for this module (spec §1);
// only the shape of the capability set is specified here, mirroring the
// teacher's sftpfs/gcsfs adapters which wrap an external byte-oriented
// resource behind a small interface.
type Backend interface {
	ReadAt(buf []byte, offset uint64) (int, error)
	WriteAt(buf []byte, offset uint64) error
	Size() (uint64, error)
	Close() error
}

// StorageIO adapts a Backend to the ByteIO trait, tracking the current
// read/write cursor itself since Backend only exposes positioned access.
type StorageIO struct {
	backend Backend
	offset  uint64
	eof     bool
}

// NewStorageIO binds a ByteIO view to a storage Backend starting at offset 0
func NewStorageIO(backend Backend) *StorageIO {
	return &StorageIO{backend: backend}
}

// EOF 报告是否已经到达后端资源的末尾
func (s *StorageIO) EOF() bool {
	return s.eof
}

// Read 从当前游标读取数据并前移游标
func (s *StorageIO) Read(buf []byte) (int, error) {
	n, err := s.backend.ReadAt(buf, s.offset)
	s.offset += uint64(n)
	if err != nil {
		return n, err
	}
	if n < len(buf) {
		s.eof = true
	}
	return n, nil
}

// Write 在当前游标写入数据并前移游标
func (s *StorageIO) Write(buf []byte) error {
	if err := s.backend.WriteAt(buf, s.offset); err != nil {
		return err
	}
	s.offset += uint64(len(buf))
	s.eof = false
	return nil
}

// Tell 返回当前游标位置
func (s *StorageIO) Tell() (uint64, error) {
	return s.offset, nil
}

// Seek 将游标移动到 offset
func (s *StorageIO) Seek(offset uint64) error {
	s.offset = offset
	s.eof = false
	return nil
}

// Size 返回后端资源的总字节数
func (s *StorageIO) Size() (uint64, error) {
	return s.backend.Size()
}

// Close 释放底层后端资源
func (s *StorageIO) Close() error {
	return s.backend.Close()
}
