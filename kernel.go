package hexa

// CPU matrix-multiplication kernel. For each output cell (i,j) inside the
// chunk, computes R[i,j] = sum_k A[i,k]*B[k,j] over 32-bit two's-complement
// arithmetic; Go's int32 wraps on overflow, matching the element type. The
// chunk's cells are zeroed first and accumulated across k, so the kernel
// fully overwrites its region regardless of the buffer's prior contents.

// cpuKernelBlockSize picks the cache-blocking edge for the k/i/j loops.
func cpuKernelBlockSize(n int) int {
	switch {
	case n >= 2048:
		return 32
	case n >= 1024:
		return 48
	case n >= 512:
		return 32
	case n < 128:
		return 16
	default:
		return 32
	}
}

// multiplyChunkCPU applies the CPU kernel to one chunk, claiming and
// releasing the CPU access roles on all three buffers.
func multiplyChunkCPU(a, b, r *MatrixBuffer, chunk WorkChunk) {
	aData := a.CPURead()
	bData := b.CPURead()
	rData := r.CPUWrite()
	defer a.ReleaseCPUAccess()
	defer b.ReleaseCPUAccess()
	defer r.ReleaseCPUAccess()

	n := a.Size
	if n <= 128 {
		multiplySmall(aData, bData, rData, n, chunk)
		return
	}
	multiplyBlocked(aData, bData, rData, n, chunk)
}

// multiplySmall handles matrices up to 128 with a fine-grained mini-block
// walk that keeps all three operands in L1.
func multiplySmall(aData, bData, rData []int32, n int, chunk WorkChunk) {
	const miniBlock = 8
	for i := chunk.StartRow; i < chunk.EndRow; i += miniBlock {
		iEnd := min(i+miniBlock, chunk.EndRow)
		for j := chunk.StartCol; j < chunk.EndCol; j += miniBlock {
			jEnd := min(j+miniBlock, chunk.EndCol)
			for ii := i; ii < iEnd; ii++ {
				for jj := j; jj < jEnd; jj++ {
					rData[ii*n+jj] = 0
				}
			}
			for k := 0; k < n; k += miniBlock {
				kEnd := min(k+miniBlock, n)
				for ii := i; ii < iEnd; ii++ {
					for jj := j; jj < jEnd; jj++ {
						sum := rData[ii*n+jj]
						for kk := k; kk < kEnd; kk++ {
							sum += aData[ii*n+kk] * bData[kk*n+jj]
						}
						rData[ii*n+jj] = sum
					}
				}
			}
		}
	}
}

// multiplyBlocked is the large-matrix path: cache-blocked over i/j/k with an
// unrolled row accumulation, skipping zero A elements.
func multiplyBlocked(aData, bData, rData []int32, n int, chunk WorkChunk) {
	blockSize := cpuKernelBlockSize(n)
	unroll := kernelUnrollFactor()

	for i := chunk.StartRow; i < chunk.EndRow; i++ {
		row := rData[i*n : (i+1)*n]
		for j := chunk.StartCol; j < chunk.EndCol; j++ {
			row[j] = 0
		}
	}

	for ii := chunk.StartRow; ii < chunk.EndRow; ii += blockSize {
		iEnd := min(ii+blockSize, chunk.EndRow)
		for jj := chunk.StartCol; jj < chunk.EndCol; jj += blockSize {
			jEnd := min(jj+blockSize, chunk.EndCol)
			for kk := 0; kk < n; kk += blockSize {
				kEnd := min(kk+blockSize, n)
				for i := ii; i < iEnd; i++ {
					rRow := rData[i*n : (i+1)*n]
					for k := kk; k < kEnd; k++ {
						aVal := aData[i*n+k]
						if aVal == 0 {
							continue
						}
						bRow := bData[k*n : (k+1)*n]
						j := jj
						if unroll == 8 {
							for ; j+7 < jEnd; j += 8 {
								rRow[j] += aVal * bRow[j]
								rRow[j+1] += aVal * bRow[j+1]
								rRow[j+2] += aVal * bRow[j+2]
								rRow[j+3] += aVal * bRow[j+3]
								rRow[j+4] += aVal * bRow[j+4]
								rRow[j+5] += aVal * bRow[j+5]
								rRow[j+6] += aVal * bRow[j+6]
								rRow[j+7] += aVal * bRow[j+7]
							}
						} else {
							for ; j+3 < jEnd; j += 4 {
								rRow[j] += aVal * bRow[j]
								rRow[j+1] += aVal * bRow[j+1]
								rRow[j+2] += aVal * bRow[j+2]
								rRow[j+3] += aVal * bRow[j+3]
							}
						}
						for ; j < jEnd; j++ {
							rRow[j] += aVal * bRow[j]
						}
					}
				}
			}
		}
	}
}

// gpuTileKernel computes one threadgroup's 16x16 tile of the chunk on the
// device mirrors. The tile is clamped against the chunk edges.
func gpuTileKernel(aDev, bDev, rDev []int32, n int, chunk WorkChunk, tileRow, tileCol int) {
	rowStart := chunk.StartRow + tileRow*GPUTileSize
	colStart := chunk.StartCol + tileCol*GPUTileSize
	rowEnd := min(rowStart+GPUTileSize, chunk.EndRow)
	colEnd := min(colStart+GPUTileSize, chunk.EndCol)
	for i := rowStart; i < rowEnd; i++ {
		aRow := aDev[i*n : (i+1)*n]
		for j := colStart; j < colEnd; j++ {
			var sum int32
			for k := 0; k < n; k++ {
				sum += aRow[k] * bDev[k*n+j]
			}
			rDev[i*n+j] = sum
		}
	}
}
